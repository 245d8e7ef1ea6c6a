package billing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{in: float64(500000), want: 500000},
		{in: 42, want: 42},
		{in: int64(7), want: 7},
		{in: json.Number("450000"), want: 450000},
		{in: "500,000", want: 500000},
		{in: " 1 000 ", want: 1000},
		{in: "12.0", want: 12},
		{in: "0", want: 0},
		{in: nil, wantErr: true},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "-5", wantErr: true},
		{in: float64(-1), wantErr: true},
		{in: 10.5, wantErr: true},
		{in: true, wantErr: true},
		{in: "100,000,000,000,000", want: MaxAmount},
		{in: "100,000,000,000,001", wantErr: true},
		{in: float64(1 << 62), wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidArgument, "input %#v", tt.in)
			continue
		}
		if assert.NoError(t, err, "input %#v", tt.in) {
			assert.Equal(t, tt.want, got, "input %#v", tt.in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "500,000", FormatAmount(500000))
	assert.Equal(t, "-50,000", FormatAmount(-50000))
	assert.Equal(t, "0", FormatAmount(0))
}

func TestMulAmount(t *testing.T) {
	tests := []struct {
		count int
		price int64
		want  int64
		ok    bool
	}{
		{count: 10, price: 50000, want: 500000, ok: true},
		{count: 0, price: math.MaxInt64, want: 0, ok: true},
		{count: -2, price: 300, want: -600, ok: true},
		{count: 4, price: 1 << 62, ok: false},
		{count: 2, price: math.MaxInt64, ok: false},
		{count: math.MinInt, price: 1, ok: false},
	}

	for _, tt := range tests {
		got, ok := mulAmount(tt.count, tt.price)
		assert.Equal(t, tt.ok, ok, "%d x %d", tt.count, tt.price)
		assert.Equal(t, tt.want, got, "%d x %d", tt.count, tt.price)
	}
}
