package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight of d in UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String renders d the way the server does: at least four year digits, and
// years before 1 AD counted backwards with a " BC" suffix (year 0 is 1 BC).
func (d Date) String() string {
	return formatDate(d.Year, d.Month, d.Day) + era(d.Year)
}

// DateCodec covers the full proleptic Gregorian range, including years past
// 9999 and BC dates.
var DateCodec Codec[Date] = codec[Date]{
	id:  DateID,
	enc: Date.String,
	dec: func(s string) (Date, error) {
		body, bc := cutEra(s)
		t, ok := parseDate(body, bc)
		if !ok {
			return Date{}, parseErr("date", s)
		}
		return DateOf(t), nil
	},
}

func formatDate(year int, month time.Month, day int) string {
	if year <= 0 {
		year = 1 - year
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
}

func era(year int) string {
	if year <= 0 {
		return " BC"
	}
	return ""
}

// cutEra strips a trailing BC or AD marker.
func cutEra(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if n := len(s); n > 3 && s[n-3] == ' ' {
		switch strings.ToUpper(s[n-2:]) {
		case "BC":
			return strings.TrimSpace(s[:n-3]), true
		case "AD":
			return strings.TrimSpace(s[:n-3]), false
		}
	}
	return s, false
}

// parseDate reads Y+-MM-DD with a year of four or more digits and returns
// midnight UTC. With bc set the year counts backwards from 1 BC.
func parseDate(s string, bc bool) (time.Time, bool) {
	n := len(s)
	if n < 10 || s[n-6] != '-' || s[n-3] != '-' {
		return time.Time{}, false
	}
	ys, ms, ds := s[:n-6], s[n-5:n-3], s[n-2:]
	if len(ys) < 4 || !digits(ys) || !digits(ms) || !digits(ds) {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(ys)
	if err != nil {
		return time.Time{}, false
	}
	month, _ := strconv.Atoi(ms)
	day, _ := strconv.Atoi(ds)
	if bc {
		if year < 1 {
			return time.Time{}, false
		}
		year = 1 - year
	}
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// Time is a time of day without a time zone, with microsecond precision.
type Time struct {
	Hour        int
	Minute      int
	Second      int
	Microsecond int
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second) + fraction(t.Microsecond)
}

// TimeCodec accepts 24:00:00 as the end of the day.
var TimeCodec Codec[Time] = codec[Time]{
	id:  TimeID,
	enc: Time.String,
	dec: parseTime,
}

func parseTime(s string) (Time, error) {
	clock, frac, hasFrac := strings.Cut(strings.TrimSpace(s), ".")
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return Time{}, parseErr("time", s)
	}
	var hms [3]int
	for i, p := range parts {
		if len(p) != 2 || !digits(p) {
			return Time{}, parseErr("time", s)
		}
		hms[i], _ = strconv.Atoi(p)
	}
	micros := 0
	if hasFrac {
		var ok bool
		if micros, ok = parseFraction(frac); !ok {
			return Time{}, parseErr("time", s)
		}
	}
	t := Time{Hour: hms[0], Minute: hms[1], Second: hms[2], Microsecond: micros}
	endOfDay := t.Hour == 24 && t.Minute == 0 && t.Second == 0 && micros == 0
	if (t.Hour > 23 && !endOfDay) || t.Minute > 59 || t.Second > 59 {
		return Time{}, parseErr("time", s)
	}
	return t, nil
}

// fraction renders microseconds as ".ffffff" with trailing zeros removed.
func fraction(micros int) string {
	if micros == 0 {
		return ""
	}
	return "." + strings.TrimRight(fmt.Sprintf("%06d", micros), "0")
}

func parseFraction(frac string) (int, bool) {
	if frac == "" || len(frac) > 6 || !digits(frac) {
		return 0, false
	}
	n, _ := strconv.Atoi(frac + strings.Repeat("0", 6-len(frac)))
	return n, true
}

// Timestamp encodes the wall clock of a time.Time, ignoring its location.
// Fractional seconds are truncated to microseconds, the server's precision.
// Decoded values are in UTC.
var Timestamp Codec[time.Time] = codec[time.Time]{
	id: TimestampID,
	enc: func(t time.Time) string {
		return formatWall(t) + era(t.Year())
	},
	dec: func(s string) (time.Time, error) {
		body, bc := cutEra(s)
		t, ok := parseWall(body, bc)
		if !ok {
			return time.Time{}, parseErr("timestamp", s)
		}
		return t, nil
	},
}

// formatWall renders the date and clock of t without an era marker.
func formatWall(t time.Time) string {
	y, m, d := t.Date()
	h, mi, sec := t.Clock()
	clock := Time{Hour: h, Minute: mi, Second: sec, Microsecond: t.Nanosecond() / 1000}
	return formatDate(y, m, d) + " " + clock.String()
}

// parseWall reads "date clock" or "dateTclock".
func parseWall(s string, bc bool) (time.Time, bool) {
	date, clock, ok := strings.Cut(s, " ")
	if !ok {
		date, clock, ok = strings.Cut(s, "T")
	}
	if !ok {
		return time.Time{}, false
	}
	d, ok := parseDate(date, bc)
	if !ok {
		return time.Time{}, false
	}
	c, err := parseTime(clock)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, c.Second, c.Microsecond*1000, time.UTC), true
}

// TimestampTz is an instant together with the UTC offset it was written in.
// The offset is kept apart from the instant so it survives a round trip.
type TimestampTz struct {
	Time   time.Time // the instant, in UTC
	Offset int       // seconds east of UTC
}

// NewTimestampTz captures t and the offset of its location.
func NewTimestampTz(t time.Time) TimestampTz {
	_, off := t.Zone()
	return TimestampTz{Time: t.UTC(), Offset: off}
}

// Local returns the instant in a fixed zone with the stored offset.
func (ts TimestampTz) Local() time.Time {
	return ts.Time.In(time.FixedZone("", ts.Offset))
}

// Equal reports whether both the instant and the offset match.
func (ts TimestampTz) Equal(o TimestampTz) bool {
	return ts.Time.Equal(o.Time) && ts.Offset == o.Offset
}

func (ts TimestampTz) String() string {
	local := ts.Local()
	return formatWall(local) + formatOffset(ts.Offset) + era(local.Year())
}

// TimestampTzCodec reads every offset form the server accepts and writes
// ±HH:MM, adding :SS only for offsets with seconds.
var TimestampTzCodec Codec[TimestampTz] = codec[TimestampTz]{
	id:  TimestampTzID,
	enc: TimestampTz.String,
	dec: parseTimestampTz,
}

func parseTimestampTz(s string) (TimestampTz, error) {
	t, bc := cutEra(s)
	sep := strings.IndexAny(t, " T")
	if sep < 0 {
		return TimestampTz{}, parseErr("timestamptz", s)
	}
	i := strings.IndexAny(t[sep+1:], "+-Zz")
	if i < 0 {
		return TimestampTz{}, parseErr("timestamptz", s)
	}
	i += sep + 1
	wall, ok := parseWall(strings.TrimSpace(t[:i]), bc)
	if !ok {
		return TimestampTz{}, parseErr("timestamptz", s)
	}
	off, ok := parseOffset(t[i:])
	if !ok {
		return TimestampTz{}, parseErr("timestamptz", s)
	}
	return TimestampTz{Time: wall.Add(-time.Duration(off) * time.Second), Offset: off}, nil
}

func formatOffset(off int) string {
	sign := '+'
	if off < 0 {
		sign, off = '-', -off
	}
	out := fmt.Sprintf("%c%02d:%02d", sign, off/3600, off%3600/60)
	if sec := off % 60; sec != 0 {
		out += fmt.Sprintf(":%02d", sec)
	}
	return out
}

// parseOffset accepts Z, ±HH, ±HHMM, ±HH:MM and ±HH:MM:SS.
func parseOffset(s string) (int, bool) {
	if s == "Z" || s == "z" {
		return 0, true
	}
	if len(s) < 3 {
		return 0, false
	}
	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, false
	}
	body := s[1:]
	var fields []string
	switch {
	case strings.Contains(body, ":"):
		fields = strings.Split(body, ":")
	case len(body) == 4:
		fields = []string{body[:2], body[2:]}
	default:
		fields = []string{body}
	}
	if len(fields) > 3 {
		return 0, false
	}
	scale := []int{3600, 60, 1}
	total := 0
	for i, f := range fields {
		if len(f) != 2 || !digits(f) {
			return 0, false
		}
		n, _ := strconv.Atoi(f)
		if i > 0 && n > 59 {
			return 0, false
		}
		total += n * scale[i]
	}
	return sign * total, true
}
