package types

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Bool writes t or f and reads every spelling the server accepts
// (t/f, true/false, yes/no, on/off, 1/0).
var Bool Codec[bool] = codec[bool]{
	id: BoolID,
	enc: func(v bool) string {
		if v {
			return "t"
		}
		return "f"
	},
	dec: func(s string) (bool, error) {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "t", "true", "1", "y", "yes", "on":
			return true, nil
		case "f", "false", "0", "n", "no", "off":
			return false, nil
		}
		return false, parseErr("boolean", s)
	},
}

// Integer codecs reject values outside the column's range.
var (
	Int16 Codec[int16] = intCodec[int16](Int2ID, 16, "smallint")
	Int32 Codec[int32] = intCodec[int32](Int4ID, 32, "integer")
	Int64 Codec[int64] = intCodec[int64](Int8ID, 64, "bigint")
)

func intCodec[T int16 | int32 | int64](id TypeID, bits int, name string) Codec[T] {
	return codec[T]{
		id:  id,
		enc: func(v T) string { return strconv.FormatInt(int64(v), 10) },
		dec: func(s string) (T, error) {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, bits)
			if err != nil {
				return 0, parseErr(name, s)
			}
			return T(n), nil
		},
	}
}

// Float codecs read and write NaN, Infinity and -Infinity.
var (
	Float32 Codec[float32] = codec[float32]{
		id:  Float4ID,
		enc: func(v float32) string { return formatFloat(float64(v), 32) },
		dec: func(s string) (float32, error) {
			f, err := parseFloat(s, 32, "real")
			return float32(f), err
		},
	}
	Float64 Codec[float64] = codec[float64]{
		id:  Float8ID,
		enc: func(v float64) string { return formatFloat(v, 64) },
		dec: func(s string) (float64, error) { return parseFloat(s, 64, "double precision") },
	}
)

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

func parseFloat(s string, bits int, name string) (float64, error) {
	switch strings.TrimSpace(s) {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), bits)
	if err != nil {
		return 0, parseErr(name, s)
	}
	return f, nil
}

func identity(s string) string { return s }

func passThrough(s string) (string, error) { return s, nil }

// Text and Varchar pass strings through unchanged.
var (
	Text    Codec[string] = codec[string]{id: TextID, enc: identity, dec: passThrough}
	Varchar Codec[string] = codec[string]{id: VarcharID, enc: identity, dec: passThrough}
)

// Numeric is an arbitrary-precision decimal kept as its exact digit string.
type Numeric string

// ParseNumeric validates s against the numeric grammar.
func ParseNumeric(s string) (Numeric, error) {
	t := strings.TrimSpace(s)
	switch t {
	case "NaN", "Infinity", "-Infinity", "+Infinity":
		return Numeric(t), nil
	}
	body := strings.TrimLeft(t, "+-")
	if len(t)-len(body) > 1 {
		return "", parseErr("numeric", s)
	}
	mantissa, exp, hasExp := strings.Cut(strings.ToLower(body), "e")
	intPart, frac, _ := strings.Cut(mantissa, ".")
	if intPart == "" && frac == "" || !digits(intPart) || !digits(frac) {
		return "", parseErr("numeric", s)
	}
	if hasExp {
		exp = strings.TrimLeft(exp, "+-")
		if exp == "" || !digits(exp) {
			return "", parseErr("numeric", s)
		}
	}
	return Numeric(t), nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (n Numeric) String() string { return string(n) }

// NumericCodec keeps the exact decimal text, validated on decode.
var NumericCodec Codec[Numeric] = codec[Numeric]{
	id:  NumericID,
	enc: func(n Numeric) string { return string(n) },
	dec: ParseNumeric,
}

// UUID reads the canonical 36-character form and writes it in lower case.
var UUID Codec[uuid.UUID] = codec[uuid.UUID]{
	id:  UUIDID,
	enc: func(u uuid.UUID) string { return u.String() },
	dec: func(s string) (uuid.UUID, error) {
		if len(s) != 36 {
			return uuid.Nil, parseErr("uuid", s)
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return uuid.Nil, parseErr("uuid", s)
		}
		return u, nil
	},
}

// JSON is a jsonb document held as the text received from the server.
type JSON string

// Jsonb checks that decoded text is valid JSON and otherwise keeps it as is.
var Jsonb Codec[JSON] = codec[JSON]{
	id:  JSONBID,
	enc: func(j JSON) string { return string(j) },
	dec: func(s string) (JSON, error) {
		if !json.Valid([]byte(s)) {
			return "", parseErr("jsonb", s)
		}
		return JSON(s), nil
	},
}
