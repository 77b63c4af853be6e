package snowapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjain20/gojobsql/jobsql"
)

func TestColumnType(t *testing.T) {
	zero, two := 0, 2
	tests := []struct {
		meta ColumnMeta
		want string
	}{
		{ColumnMeta{Type: "fixed", Scale: &zero}, jobsql.TypeInteger},
		{ColumnMeta{Type: "fixed"}, jobsql.TypeInteger},
		{ColumnMeta{Type: "FIXED", Scale: &two}, jobsql.TypeNumeric},
		{ColumnMeta{Type: "real"}, jobsql.TypeFloat},
		{ColumnMeta{Type: "text"}, jobsql.TypeString},
		{ColumnMeta{Type: "variant"}, jobsql.TypeString},
		{ColumnMeta{Type: "boolean"}, jobsql.TypeBoolean},
		{ColumnMeta{Type: "timestamp_ntz"}, jobsql.TypeDatetime},
		{ColumnMeta{Type: "timestamp_tz"}, jobsql.TypeTimestamp},
		{ColumnMeta{Type: "binary"}, jobsql.TypeBytes},
		{ColumnMeta{Type: "geography"}, "GEOGRAPHY"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, columnType(tt.meta), tt.meta.Type)
	}
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		typ  string
		in   any
		want any
	}{
		{"date", "19000", "2022-01-08"},
		{"date", "-1", "1969-12-31"},
		{"time", "45296", "12:34:56"},
		{"time", "45296.120000000", "12:34:56.12"},
		{"timestamp_ntz", "1700000000.123456789", "2023-11-14T22:13:20.123456"},
		{"timestamp_ntz", "-0.5", "1969-12-31T23:59:59.5"},
		{"timestamp_ltz", "1700000000.000000000", "1700000000.000000000"},
		{"timestamp_tz", "1700000000.000000000 1500", "1700000000.000000000"},
		{"binary", "010203", "AQID"},
		{"text", "x", "x"},
		{"text", nil, nil},
	}
	for _, tt := range tests {
		got, err := normalizeValue(ColumnMeta{Type: tt.typ}, tt.in)
		if assert.NoError(t, err, "%s %v", tt.typ, tt.in) {
			assert.Equal(t, tt.want, got, "%s %v", tt.typ, tt.in)
		}
	}
}

func TestNormalizeValue_Invalid(t *testing.T) {
	for typ, in := range map[string]string{
		"date":          "yesterday",
		"time":          "noon",
		"timestamp_ntz": "1.2.3",
		"binary":        "zz",
	} {
		_, err := normalizeValue(ColumnMeta{Type: typ}, in)
		assert.Error(t, err, "%s %q", typ, in)
	}
}

func TestNormalizeRows_WidthMismatch(t *testing.T) {
	_, err := normalizeRows([]ColumnMeta{{Name: "A", Type: "text"}}, [][]any{{"a", "b"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 cells")
}
