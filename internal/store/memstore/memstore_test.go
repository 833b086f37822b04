package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-starload/internal/warehouse"
)

func TestAppendAndScan(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.CreateTable("region_dim", "region_id_pk", "region", "country", "is_active")

	n, err := s.Append(ctx, "region_dim", []string{"region_id_pk", "region", "country"}, [][]any{
		{int64(1), "APAC", "IN"},
		{int64(2), "EU", "FR"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := s.Scan(ctx, "region_dim", []string{"country", "is_active"})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"IN", nil}, {"FR", nil}}, rows)
}

func TestScanErrors(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.CreateTable("t", "a")

	_, err := s.Scan(ctx, "missing", []string{"a"})
	assert.Error(t, err)

	_, err = s.Scan(ctx, "t", []string{"b"})
	assert.Error(t, err)

	_, err = s.Append(ctx, "t", []string{"a"}, [][]any{{1, 2}})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Count("t"))
}

func TestIssueBlockIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.CreateSequence("seq", 10)

	first, err := s.IssueBlock(ctx, "seq", 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11, 12}, first)

	next, err := s.IssueNext(ctx, "seq")
	require.NoError(t, err)
	assert.Equal(t, int64(13), next)

	other, err := s.IssueNext(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}

func TestFaults(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.CreateTable("t", "a")
	boom := errors.New("boom")

	s.Fail("append", "t", boom)
	_, err := s.Append(ctx, "t", []string{"a"}, [][]any{{1}})
	assert.ErrorIs(t, err, boom)

	s.Fail("append", "t", nil)
	_, err = s.Append(ctx, "t", []string{"a"}, [][]any{{1}})
	assert.NoError(t, err)

	s.Fail("issue", "seq", boom)
	_, err = s.IssueNext(ctx, "seq")
	assert.ErrorIs(t, err, boom)
}

func TestWithSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.CreateTable("t", "a")
	_, err := s.Append(ctx, "t", []string{"a"}, [][]any{{1}})
	require.NoError(t, err)

	err = s.WithSnapshot(ctx, func(sc warehouse.Scanner) error {
		_, err := s.Append(ctx, "t", []string{"a"}, [][]any{{2}})
		require.NoError(t, err)

		rows, err := sc.Scan(ctx, "t", []string{"a"})
		require.NoError(t, err)
		assert.Len(t, rows, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Count("t"))
}

func TestNewStarSchema(t *testing.T) {
	s := NewStarSchema("in_sales_order")
	assert.Equal(t, 0, s.Count("in_sales_order"))
	for _, d := range warehouse.Dimensions() {
		assert.Equal(t, 0, s.Count(d.Table), d.Table)
	}
	assert.Equal(t, 0, s.Count(warehouse.FactTable))
	assert.Equal(t, -1, s.Count("nope"))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()
	s.CreateTable("t", "a")

	_, err := s.Scan(ctx, "t", []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}
