package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"
)

func printResults(w io.Writer, format string, results []*queryResult) error {
	if format == "json" {
		for _, r := range results {
			for _, row := range r.Rows {
				for i, v := range row {
					row[i] = jsonValue(v)
				}
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for i, r := range results {
		if len(results) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "-- %s\n", r.Source)
		}
		rows := make([][]string, len(r.Rows))
		for j, row := range r.Rows {
			rows[j] = make([]string, len(row))
			for k, v := range row {
				rows[j][k] = formatValue(v)
			}
		}
		printTable(w, r.Columns, rows)
	}
	return nil
}

// printTable writes upper-cased headers and left-aligned columns separated
// by two spaces.
func printTable(w io.Writer, columns []string, rows [][]string) {
	if len(columns) == 0 {
		return
	}
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = utf8.RuneCountInString(c)
	}
	for _, row := range rows {
		for i := range min(len(row), len(widths)) {
			widths[i] = max(widths[i], utf8.RuneCountInString(row[i]))
		}
	}

	line := func(cells []string) {
		var b strings.Builder
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i == len(widths)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)+2))
		}
		fmt.Fprintln(w, b.String())
	}

	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = strings.ToUpper(c)
	}
	line(headers)
	for _, row := range rows {
		line(row)
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case *big.Rat:
		return ratString(v)
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	default:
		return fmt.Sprint(v)
	}
}

func jsonValue(v any) any {
	if r, ok := v.(*big.Rat); ok {
		return json.Number(ratString(r))
	}
	return v
}

// ratString renders r in decimal. Non-terminating fractions are cut at 38
// digits, the scale of BIGNUMERIC.
func ratString(r *big.Rat) string {
	if r.IsInt() {
		return r.RatString()
	}
	s := r.FloatString(38)
	return strings.TrimRight(s, "0")
}
