package aggregate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestExtractDecimal(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]interface{}
		field string
		want  decimal.Decimal
	}{
		{
			name:  "empty field name",
			props: map[string]interface{}{"amount": 1},
			field: "",
			want:  decimal.Zero,
		},
		{
			name:  "missing field",
			props: map[string]interface{}{"amount": 1},
			field: "missing",
			want:  decimal.Zero,
		},
		{
			name:  "float64 from JSON",
			props: map[string]interface{}{"amount": 12.5},
			field: "amount",
			want:  decimal.RequireFromString("12.5"),
		},
		{
			name:  "float32",
			props: map[string]interface{}{"amount": float32(7.25)},
			field: "amount",
			want:  decimal.RequireFromString("7.25"),
		},
		{
			name:  "int",
			props: map[string]interface{}{"amount": 7},
			field: "amount",
			want:  decimal.NewFromInt(7),
		},
		{
			name:  "int64",
			props: map[string]interface{}{"amount": int64(9)},
			field: "amount",
			want:  decimal.NewFromInt(9),
		},
		{
			name:  "valid decimal string",
			props: map[string]interface{}{"amount": "42.125"},
			field: "amount",
			want:  decimal.RequireFromString("42.125"),
		},
		{
			name:  "invalid string returns zero",
			props: map[string]interface{}{"amount": "not-a-number"},
			field: "amount",
			want:  decimal.Zero,
		},
		{
			name:  "unsupported type returns zero",
			props: map[string]interface{}{"amount": true},
			field: "amount",
			want:  decimal.Zero,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractDecimal(tc.props, tc.field)
			require.True(t, tc.want.Equal(got), "want=%s got=%s", tc.want.String(), got.String())
		})
	}
}
