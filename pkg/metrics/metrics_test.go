package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(DashboardCacheTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(DashboardCacheTotal.WithLabelValues("miss"))

	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)

	assert.Equal(t, hits+1, testutil.ToFloat64(DashboardCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(DashboardCacheTotal.WithLabelValues("miss")))
}

func TestRecordEntriesUpsertedAndTransitions(t *testing.T) {
	entries := testutil.ToFloat64(EntriesUpsertedTotal)
	submits := testutil.ToFloat64(SheetTransitionsTotal.WithLabelValues("submit"))

	RecordEntriesUpserted(3)
	RecordTransition("submit")

	assert.Equal(t, entries+3, testutil.ToFloat64(EntriesUpsertedTotal))
	assert.Equal(t, submits+1, testutil.ToFloat64(SheetTransitionsTotal.WithLabelValues("submit")))
}

func TestRecordRejectedCommand(t *testing.T) {
	before := testutil.ToFloat64(RejectedCommandsTotal.WithLabelValues("StaleState"))
	conflicts := testutil.ToFloat64(WriteConflictsTotal)

	RecordRejectedCommand("StaleState")
	RecordWriteConflict()

	assert.Equal(t, before+1, testutil.ToFloat64(RejectedCommandsTotal.WithLabelValues("StaleState")))
	assert.Equal(t, conflicts+1, testutil.ToFloat64(WriteConflictsTotal))
}
