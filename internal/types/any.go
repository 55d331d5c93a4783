package types

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/relmap/internal/errs"
)

// nullable is implemented by every Null[T].
type nullable interface {
	Inner() (any, bool)
}

// EncodeAny renders a Go value of any supported type as a parameter.
// time.Time is written with its offset so it binds to both timestamp
// and timestamptz columns.
func EncodeAny(v any) (Param, error) {
	switch x := v.(type) {
	case nil:
		return Param{}, nil
	case Param:
		return x, nil
	case nullable:
		inner, ok := x.Inner()
		if !ok {
			return Param{}, nil
		}
		return EncodeAny(inner)
	case string:
		return TextParam(x), nil
	case bool:
		return TextParam(Bool.Encode(x)), nil
	case int:
		return TextParam(strconv.Itoa(x)), nil
	case int8:
		return TextParam(strconv.FormatInt(int64(x), 10)), nil
	case int16:
		return TextParam(Int16.Encode(x)), nil
	case int32:
		return TextParam(Int32.Encode(x)), nil
	case int64:
		return TextParam(Int64.Encode(x)), nil
	case uint:
		return TextParam(strconv.FormatUint(uint64(x), 10)), nil
	case uint8:
		return TextParam(strconv.FormatUint(uint64(x), 10)), nil
	case uint16:
		return TextParam(strconv.FormatUint(uint64(x), 10)), nil
	case uint32:
		return TextParam(strconv.FormatUint(uint64(x), 10)), nil
	case uint64:
		return TextParam(strconv.FormatUint(x, 10)), nil
	case float32:
		return TextParam(Float32.Encode(x)), nil
	case float64:
		return TextParam(Float64.Encode(x)), nil
	case Numeric:
		return TextParam(NumericCodec.Encode(x)), nil
	case uuid.UUID:
		return TextParam(UUID.Encode(x)), nil
	case JSON:
		return TextParam(Jsonb.Encode(x)), nil
	case Date:
		return TextParam(DateCodec.Encode(x)), nil
	case Time:
		return TextParam(TimeCodec.Encode(x)), nil
	case TimestampTz:
		return TextParam(TimestampTzCodec.Encode(x)), nil
	case time.Time:
		return TextParam(TimestampTzCodec.Encode(NewTimestampTz(x))), nil
	case []byte:
		if x == nil {
			return Param{}, nil
		}
		return TextParam(string(x)), nil
	}
	return Param{}, errs.Newf(errs.ErrKindInvalidInput, "unsupported parameter type %T", v)
}

// EncodeAll applies EncodeAny to every value, stopping at the first failure.
func EncodeAll(values []any) ([]Param, error) {
	params := make([]Param, len(values))
	for i, v := range values {
		p, err := EncodeAny(v)
		if err != nil {
			return nil, err
		}
		params[i] = p
	}
	return params, nil
}
