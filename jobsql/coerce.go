package jobsql

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Declared column types understood by Decode. Backends normalize their own
// type names to these before handing pages to the core.
const (
	TypeInteger    = "INTEGER"
	TypeFloat      = "FLOAT"
	TypeBoolean    = "BOOLEAN"
	TypeString     = "STRING"
	TypeDate       = "DATE"
	TypeTime       = "TIME"
	TypeDatetime   = "DATETIME"
	TypeTimestamp  = "TIMESTAMP"
	TypeNumeric    = "NUMERIC"
	TypeBigNumeric = "BIGNUMERIC"
	TypeBytes      = "BYTES"
)

var typeAliases = map[string]string{
	"INT64":   TypeInteger,
	"FLOAT64": TypeFloat,
	"BOOL":    TypeBoolean,
}

var (
	timeOfDayRE = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})(?:\.(\d{1,9}))?$`)
	datetimeRE  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[T ](\d{2}):(\d{2}):(\d{2})(?:\.(\d{1,6}))?$`)
	decimalRE   = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
)

// CanonicalType upper-cases a declared type name and resolves aliases.
func CanonicalType(declared string) string {
	t := strings.ToUpper(strings.TrimSpace(declared))
	if alias, ok := typeAliases[t]; ok {
		return alias
	}
	return t
}

// Decode converts the raw text of a cell to a Go value according to its
// declared column type. loc is the target zone for TIME and DATETIME values;
// nil means UTC.
//
//	INTEGER    int64
//	FLOAT      float64
//	BOOLEAN    bool
//	STRING     string
//	DATE       time.Time, midnight UTC
//	TIME       time.Time on 1970-01-01 at loc's standard offset
//	DATETIME   time.Time in loc
//	TIMESTAMP  time.Time in UTC
//	NUMERIC    *big.Rat
//	BYTES      []byte
func Decode(declared, raw string, loc *time.Location) (any, error) {
	if loc == nil {
		loc = time.UTC
	}
	typ := CanonicalType(declared)

	var (
		v   any
		err error
	)
	switch typ {
	case TypeInteger:
		v, err = strconv.ParseInt(raw, 10, 64)
	case TypeFloat:
		v, err = strconv.ParseFloat(raw, 64)
	case TypeBoolean:
		v, err = parseBool(raw)
	case TypeString:
		return raw, nil
	case TypeDate:
		v, err = time.Parse(time.DateOnly, raw)
	case TypeTime:
		v, err = parseTimeOfDay(raw, loc)
	case TypeDatetime:
		v, err = parseDatetime(raw, loc)
	case TypeTimestamp:
		v, err = parseEpochSeconds(raw)
	case TypeNumeric, TypeBigNumeric:
		v, err = parseDecimal(raw)
	case TypeBytes:
		v, err = base64.StdEncoding.DecodeString(raw)
	default:
		return nil, &Error{Kind: ErrUnsupportedType, Msg: fmt.Sprintf("declared type %q", declared)}
	}
	if err != nil {
		return nil, &Error{Kind: ErrMalformedValue, Msg: fmt.Sprintf("%s value %q", typ, raw), Err: err}
	}
	return v, nil
}

// parseDecimal accepts plain decimal notation with an optional exponent.
// big.Rat alone would also take fractions and base prefixes.
func parseDecimal(raw string) (*big.Rat, error) {
	if !decimalRE.MatchString(raw) {
		return nil, fmt.Errorf("invalid decimal %q", raw)
	}
	r, ok := new(big.Rat).SetString(raw)
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", raw)
	}
	return r, nil
}

func parseBool(raw string) (bool, error) {
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean literal %q", raw)
}

// parseTimeOfDay places HH:MM:SS[.fffffffff] on the epoch date. A bare time
// has no date to resolve daylight saving against, so the zone's standard
// offset is used.
func parseTimeOfDay(raw string, loc *time.Location) (time.Time, error) {
	m := timeOfDayRE.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, fmt.Errorf("expected HH:MM:SS[.fraction], got %q", raw)
	}
	h, mi, s, err := clock(m[1], m[2], m[3])
	if err != nil {
		return time.Time{}, err
	}
	name, offset := standardOffset(loc)
	return time.Date(1970, time.January, 1, h, mi, s, fractionNanos(m[4]), time.FixedZone(name, offset)), nil
}

// parseDatetime resolves a naive datetime in loc, using the offset in effect
// at that wall-clock instant.
func parseDatetime(raw string, loc *time.Location) (time.Time, error) {
	m := datetimeRE.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD[T ]HH:MM:SS[.fraction], got %q", raw)
	}
	d, err := time.Parse(time.DateOnly, m[1])
	if err != nil {
		return time.Time{}, err
	}
	h, mi, s, err := clock(m[2], m[3], m[4])
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, mi, s, fractionNanos(m[5]), loc), nil
}

// parseEpochSeconds reads decimal seconds since the Unix epoch, with an
// optional exponent, at nanosecond precision.
func parseEpochSeconds(raw string) (time.Time, error) {
	r, err := parseDecimal(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch seconds %q", raw)
	}

	// floor(r) for both signs
	q := new(big.Int).Div(r.Num(), r.Denom())
	sec := q.Int64()
	if !q.IsInt64() {
		return time.Time{}, fmt.Errorf("epoch seconds %q out of range", raw)
	}
	frac := new(big.Rat).Sub(r, new(big.Rat).SetInt(q))
	frac.Mul(frac, big.NewRat(int64(time.Second), 1))

	// round half up to the nearest nanosecond
	frac.Add(frac, big.NewRat(1, 2))
	ns := new(big.Int).Div(frac.Num(), frac.Denom()).Int64()
	if ns >= int64(time.Second) {
		sec++
		ns -= int64(time.Second)
	}
	return time.Unix(sec, ns).UTC(), nil
}

func clock(hs, ms, ss string) (int, int, int, error) {
	h, _ := strconv.Atoi(hs)
	m, _ := strconv.Atoi(ms)
	s, _ := strconv.Atoi(ss)
	if h > 23 || m > 59 || s > 59 {
		return 0, 0, 0, fmt.Errorf("clock %s:%s:%s out of range", hs, ms, ss)
	}
	return h, m, s, nil
}

func fractionNanos(f string) int {
	if f == "" {
		return 0
	}
	f += strings.Repeat("0", 9-len(f))
	n, _ := strconv.Atoi(f)
	return n
}

// standardOffset returns the non-daylight-saving offset of loc in the current
// year, probing January and July so both hemispheres resolve correctly.
func standardOffset(loc *time.Location) (string, int) {
	year := time.Now().In(loc).Year()
	for _, month := range []time.Month{time.January, time.July} {
		t := time.Date(year, month, 1, 12, 0, 0, 0, loc)
		if !t.IsDST() {
			return t.Zone()
		}
	}
	return time.Date(year, time.January, 1, 12, 0, 0, 0, loc).Zone()
}
