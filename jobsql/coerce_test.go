package jobsql

import (
	"math/big"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Scalars(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  string
		raw  string
		want any
	}{
		{"INTEGER", "42", int64(42)},
		{"INT64", "-9223372036854775808", int64(-9223372036854775808)},
		{"integer", "7", int64(7)},
		{"FLOAT", "1.25", 1.25},
		{"FLOAT64", "-3e2", -300.0},
		{"BOOLEAN", "true", true},
		{"BOOL", "false", false},
		{"STRING", "héllo", "héllo"},
		{"STRING", "", ""},
		{"BYTES", "AQID", []byte{1, 2, 3}},
		{"DATE", "2024-02-29", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.raw, func(t *testing.T) {
			got, err := Decode(tt.typ, tt.raw, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Numeric(t *testing.T) {
	t.Parallel()

	got, err := Decode("NUMERIC", "123.4500", nil)
	require.NoError(t, err)
	r, ok := got.(*big.Rat)
	require.True(t, ok)
	assert.Equal(t, "2469/20", r.String())
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ string
		raw string
	}{
		{"INTEGER", "1.0"},
		{"INTEGER", ""},
		{"FLOAT", "one"},
		{"BOOLEAN", "TRUE"},
		{"BOOLEAN", "1"},
		{"DATE", "2023-02-29"},
		{"DATE", "2023-2-1"},
		{"TIME", "24:00:00"},
		{"TIME", "12:00:00.1234567890"},
		{"TIME", "12:00"},
		{"DATETIME", "2020-01-01T00:00:00.1234567"},
		{"DATETIME", "2020-01-01X00:00:00"},
		{"TIMESTAMP", "soon"},
		{"TIMESTAMP", "3/2"},
		{"TIMESTAMP", "0x10"},
		{"TIMESTAMP", " 1.5 "},
		{"TIMESTAMP", "Inf"},
		{"NUMERIC", "1,5"},
		{"NUMERIC", "1/3"},
		{"NUMERIC", "0b101"},
		{"NUMERIC", "0x1p4"},
		{"NUMERIC", " 1"},
		{"NUMERIC", "."},
		{"NUMERIC", "1e"},
		{"BYTES", "not base64!"},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.raw, func(t *testing.T) {
			_, err := Decode(tt.typ, tt.raw, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedValue)
		})
	}
}

func TestDecode_UnsupportedType(t *testing.T) {
	t.Parallel()

	_, err := Decode("GEOGRAPHY", "POINT(1 2)", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.NotErrorIs(t, err, ErrMalformedValue)
}

func TestDecode_TimestampFractionalSeconds(t *testing.T) {
	t.Parallel()

	got, err := Decode("TIMESTAMP", "1.5", nil)
	require.NoError(t, err)
	ts := got.(time.Time)
	assert.True(t, ts.Equal(time.Unix(1, 500_000_000)))
	assert.Equal(t, 500_000_000, ts.Nanosecond())

	tests := map[string]time.Time{
		"0":                    time.Unix(0, 0),
		"1.4E9":                time.Unix(1_400_000_000, 0),
		"1700000000.123456789": time.Unix(1_700_000_000, 123_456_789),
		"-1.5":                 time.Unix(-2, 500_000_000),
		"0.0000000004":         time.Unix(0, 0),
		"0.9999999996":         time.Unix(1, 0),
	}
	for raw, want := range tests {
		got, err := Decode("TIMESTAMP", raw, nil)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got.(time.Time)), "%s: got %v want %v", raw, got, want)
	}
}

func TestDecode_DatetimeUsesOffsetAtInstant(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// DST begins at 02:00 local on 2020-03-08.
	before, err := Decode("DATETIME", "2020-03-08T01:30:00", ny)
	require.NoError(t, err)
	assert.True(t, before.(time.Time).Equal(time.Date(2020, 3, 8, 6, 30, 0, 0, time.UTC)))
	_, offset := before.(time.Time).Zone()
	assert.Equal(t, -5*3600, offset)

	after, err := Decode("DATETIME", "2020-03-08 03:30:00.25", ny)
	require.NoError(t, err)
	assert.True(t, after.(time.Time).Equal(time.Date(2020, 3, 8, 7, 30, 0, 250_000_000, time.UTC)))
	_, offset = after.(time.Time).Zone()
	assert.Equal(t, -4*3600, offset)
}

func TestDecode_TimeUsesStandardOffset(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	got, err := Decode("TIME", "13:45:30.123456789", ny)
	require.NoError(t, err)
	tm := got.(time.Time)
	_, offset := tm.Zone()
	assert.Equal(t, -5*3600, offset)
	assert.Equal(t, 13, tm.Hour())
	assert.Equal(t, 45, tm.Minute())
	assert.Equal(t, 30, tm.Second())
	assert.Equal(t, 123_456_789, tm.Nanosecond())
	assert.Equal(t, 1970, tm.Year())

	// southern hemisphere: January is daylight saving time
	syd, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	got, err = Decode("TIME", "08:00:00", syd)
	require.NoError(t, err)
	_, offset = got.(time.Time).Zone()
	assert.Equal(t, 10*3600, offset)

	got, err = Decode("TIME", "08:00:00.5", nil)
	require.NoError(t, err)
	assert.True(t, got.(time.Time).Equal(time.Date(1970, 1, 1, 8, 0, 0, 500_000_000, time.UTC)))
}

func TestCanonicalType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TypeInteger, CanonicalType(" int64 "))
	assert.Equal(t, TypeBoolean, CanonicalType("bool"))
	assert.Equal(t, "GEOGRAPHY", CanonicalType("geography"))
}
