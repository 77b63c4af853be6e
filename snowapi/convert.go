package snowapi

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vjain20/gojobsql/jobsql"
)

// columnType maps a Snowflake rowType entry to the canonical type names
// understood by jobsql.Decode.
func columnType(m ColumnMeta) string {
	switch strings.ToLower(m.Type) {
	case "fixed":
		if m.Scale == nil || *m.Scale == 0 {
			return jobsql.TypeInteger
		}
		return jobsql.TypeNumeric
	case "real":
		return jobsql.TypeFloat
	case "text", "variant", "object", "array":
		return jobsql.TypeString
	case "boolean":
		return jobsql.TypeBoolean
	case "date":
		return jobsql.TypeDate
	case "time":
		return jobsql.TypeTime
	case "timestamp_ntz":
		return jobsql.TypeDatetime
	case "timestamp_ltz", "timestamp_tz":
		return jobsql.TypeTimestamp
	case "binary":
		return jobsql.TypeBytes
	default:
		return strings.ToUpper(m.Type)
	}
}

func columns(rowType []ColumnMeta) []jobsql.Column {
	cols := make([]jobsql.Column, len(rowType))
	for i, m := range rowType {
		cols[i] = jobsql.Column{Name: m.Name, Type: columnType(m)}
	}
	return cols
}

// normalizeRows rewrites jsonv2 cells into the textual forms jobsql.Decode
// expects for each column's canonical type. NULL cells stay nil.
func normalizeRows(rowType []ColumnMeta, data [][]any) ([][]any, error) {
	rows := make([][]any, len(data))
	for i, raw := range data {
		if len(raw) != len(rowType) {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", i, len(raw), len(rowType))
		}
		row := make([]any, len(raw))
		for j, cell := range raw {
			v, err := normalizeValue(rowType[j], cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, rowType[j].Name, err)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return rows, nil
}

func normalizeValue(m ColumnMeta, cell any) (any, error) {
	s, ok := cell.(string)
	if !ok {
		return cell, nil
	}

	switch strings.ToLower(m.Type) {
	case "date":
		days, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", s, err)
		}
		return time.Unix(days*86400, 0).UTC().Format(time.DateOnly), nil
	case "time":
		sec, nanos, err := splitSeconds(s)
		if err != nil {
			return nil, err
		}
		return time.Unix(sec, int64(nanos)).UTC().Format("15:04:05.999999999"), nil
	case "timestamp_ntz":
		sec, nanos, err := splitSeconds(s)
		if err != nil {
			return nil, err
		}
		// DATETIME carries at most microseconds.
		return time.Unix(sec, int64(nanos)).UTC().Format("2006-01-02T15:04:05.999999"), nil
	case "timestamp_tz":
		// "<epoch seconds> <offset minutes + 1440>"; the instant is the first field.
		if f := strings.Fields(s); len(f) > 0 {
			return f[0], nil
		}
		return s, nil
	case "binary":
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid binary %q: %w", s, err)
		}
		return base64.StdEncoding.EncodeToString(b), nil
	default:
		return s, nil
	}
}

// splitSeconds parses "<seconds>[.<fraction>]" into whole seconds and
// nanoseconds, flooring negative values.
func splitSeconds(s string) (int64, int, error) {
	whole, frac, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid seconds value %q: %w", s, err)
	}
	if len(frac) > 9 {
		frac = frac[:9]
	}
	nanos := 0
	if frac != "" {
		n, err := strconv.Atoi(frac + strings.Repeat("0", 9-len(frac)))
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("invalid seconds value %q", s)
		}
		nanos = n
	}
	if strings.HasPrefix(whole, "-") && nanos > 0 {
		sec--
		nanos = 1_000_000_000 - nanos
	}
	return sec, nanos, nil
}
