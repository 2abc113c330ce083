package repository

import (
	"errors"
	"testing"

	"github.com/rpattn/ngoreports/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchUpsertResult(t *testing.T) {
	reports := []domain.Report{
		{NGOID: "A", Month: "2025-01"},
		{NGOID: "B", Month: "2025-01"},
		{NGOID: "A", Month: "2025-01"},
		{NGOID: "C", Month: "2025-01"},
	}

	t.Run("no failures", func(t *testing.T) {
		result := NewBatchUpsertResult(reports, nil)
		assert.Equal(t, 4, result.Upserted)
		assert.Empty(t, result.Failures)
	})

	t.Run("failed key reported once at last position", func(t *testing.T) {
		cause := errors.New("check violation")
		result := NewBatchUpsertResult(reports, map[domain.ReportKey]error{
			{NGOID: "A", Month: "2025-01"}: cause,
		})
		assert.Equal(t, 2, result.Upserted)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, 2, result.Failures[0].Index)
		assert.Equal(t, "A", result.Failures[0].Key.NGOID)
		assert.ErrorIs(t, result.Failures[0].Err, cause)
	})
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name                  string
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{name: "defaults", limit: 0, offset: -3, wantLimit: 50, wantOffset: 0},
		{name: "passthrough", limit: 20, offset: 40, wantLimit: 20, wantOffset: 40},
		{name: "capped", limit: 10000, offset: 0, wantLimit: 500, wantOffset: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset := NormalizePage(tt.limit, tt.offset)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}
