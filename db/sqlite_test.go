package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"penguinapi/penguin"
)

func sampleRecord(id string) PredictionRecord {
	return PredictionRecord{
		RequestID: id,
		Features: penguin.Features{
			BillLengthMM:    39.1,
			BillDepthMM:     18.7,
			FlipperLengthMM: 181,
			BodyMassG:       3750,
			Year:            2007,
			Sex:             penguin.Male,
			Island:          penguin.Torgersen,
		},
		Result: penguin.Result{
			Species:    penguin.Adelie,
			Confidence: 0.9,
			Probabilities: map[penguin.Species]float64{
				penguin.Adelie:    0.9,
				penguin.Chinstrap: 0.06,
				penguin.Gentoo:    0.04,
			},
			ModelVersion: "v1",
		},
		CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAuditLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "predictions.db")
	logger := zaptest.NewLogger(t)

	audit, err := OpenAuditLog(path, 16, logger)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.True(t, audit.Record(sampleRecord(fmt.Sprintf("req-%d", i))))
	}
	require.NoError(t, audit.Close())
	assert.False(t, audit.Record(sampleRecord("late")))

	audit, err = OpenAuditLog(path, 16, logger)
	require.NoError(t, err)
	defer audit.Close()

	records, err := audit.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "req-2", records[0].RequestID)
	assert.Equal(t, "req-1", records[1].RequestID)

	want := sampleRecord("req-2")
	got := records[0]
	assert.Equal(t, want.Features, got.Features)
	assert.Equal(t, want.Result, got.Result)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestAuditLogRecentValidatesLimit(t *testing.T) {
	audit, err := OpenAuditLog(filepath.Join(t.TempDir(), "p.db"), 1, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer audit.Close()

	_, err = audit.Recent(context.Background(), 0)
	assert.Error(t, err)

	records, err := audit.Recent(context.Background(), 1000)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAuditLogCloseIsIdempotent(t *testing.T) {
	audit, err := OpenAuditLog(filepath.Join(t.TempDir(), "p.db"), 1, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, audit.Close())
	assert.NoError(t, audit.Close())
}
