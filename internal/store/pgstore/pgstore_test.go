package pgstore

import (
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectSQL(t *testing.T) {
	tests := []struct {
		table   string
		columns []string
		want    string
	}{
		{"region_dim", []string{"region", "country"}, `SELECT "region", "country" FROM "region_dim"`},
		{"staging.in_sales_order", []string{"order_id"}, `SELECT "order_id" FROM "staging"."in_sales_order"`},
		{`odd"name`, []string{"a"}, `SELECT "a" FROM "odd""name"`},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			assert.Equal(t, tt.want, selectSQL(tt.table, tt.columns))
		})
	}
}

func TestNormalize(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int16", int16(3), int64(3)},
		{"int32", int32(7), int64(7)},
		{"int64", int64(9), int64(9)},
		{"float32", float32(1.5), float64(1.5)},
		{"numeric", pgtype.Numeric{Int: big.NewInt(1234), Exp: -2, Valid: true}, 12.34},
		{"null numeric", pgtype.Numeric{}, nil},
		{"string", "APAC", "APAC"},
		{"date", day, day},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalize(tt.in)
			require.NoError(t, err)
			if f, ok := tt.want.(float64); ok {
				assert.InDelta(t, f, got, 1e-9)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
