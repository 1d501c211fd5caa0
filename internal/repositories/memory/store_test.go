package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tally/internal/repositories"
	"github.com/Ramsey-B/tally/internal/repositories/activity"
	"github.com/Ramsey-B/tally/internal/repositories/memory"
	"github.com/Ramsey-B/tally/internal/repositories/reference"
	"github.com/Ramsey-B/tally/internal/repositories/resultentry"
	"github.com/Ramsey-B/tally/internal/repositories/resultsheet"
	collationerrors "github.com/Ramsey-B/tally/pkg/errors"
	"github.com/Ramsey-B/tally/pkg/models"
)

var (
	_ resultsheet.ResultSheetRepository = (*memory.SheetStore)(nil)
	_ resultentry.ResultEntryRepository = (*memory.EntryStore)(nil)
	_ activity.ActivityRepository       = (*memory.ActivityStore)(nil)
	_ reference.ReferenceRepository     = (*memory.ReferenceStore)(nil)
)

func strPtr(s string) *string { return &s }

func TestSheetStore_CreateIsIdempotentPerStation(t *testing.T) {
	ctx := context.Background()
	sheets := memory.NewStore().Sheets()

	first, created, err := sheets.Create(ctx, models.ResultSheet{ID: "a", ElectionID: "e1", PollingStationID: "ps-1", Version: 1})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := sheets.Create(ctx, models.ResultSheet{ID: "b", ElectionID: "e1", PollingStationID: "ps-1", Version: 1})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestSheetStore_UpdateChecksVersion(t *testing.T) {
	ctx := context.Background()
	sheets := memory.NewStore().Sheets()
	sheet, _, _ := sheets.Create(ctx, models.ResultSheet{ID: "a", ElectionID: "e1", PollingStationID: "ps-1", Version: 1})

	sheet.Version = 2
	require.NoError(t, sheets.Update(ctx, sheet, 1))

	sheet.Version = 3
	err := sheets.Update(ctx, sheet, 1)
	assert.True(t, collationerrors.IsKind(err, collationerrors.KindStaleState))

	_, err = sheets.GetByID(ctx, "missing")
	assert.True(t, repositories.IsNotFound(err))
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, store.Entries().Upsert(ctx, []models.ResultEntry{
			{SheetID: "a", TargetKey: "candidate:x", CandidateID: strPtr("x"), Votes: 10},
		}))
		require.NoError(t, store.Activity().Append(ctx, models.ActivityEvent{ID: "ev", SheetID: "a"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, _ := store.Entries().CountBySheet(ctx, "a")
	assert.Zero(t, count)
	history, _ := store.Activity().ListBySheet(ctx, "a")
	assert.Empty(t, history)
}

func TestStore_WithTxCommits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	err := store.WithTx(ctx, func(ctx context.Context) error {
		return store.WithTx(ctx, func(ctx context.Context) error {
			return store.Entries().Upsert(ctx, []models.ResultEntry{
				{SheetID: "a", TargetKey: "candidate:x", CandidateID: strPtr("x"), Votes: 10},
			})
		})
	})
	require.NoError(t, err)

	count, _ := store.Entries().CountBySheet(ctx, "a")
	assert.Equal(t, 1, count)
}

func TestActivityStore_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	events := memory.NewStore().Activity()

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, events.Append(ctx, models.ActivityEvent{ID: id, ElectionID: "e1", SheetID: "a"}))
	}
	require.NoError(t, events.Append(ctx, models.ActivityEvent{ID: "other", ElectionID: "e2"}))

	feed, err := events.ListByElection(ctx, "e1", 2)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, "3", feed[0].ID)
	assert.Equal(t, "2", feed[1].ID)
}

func TestEntryStore_ListCertifiedCandidateEntries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	_, _, _ = store.Sheets().Create(ctx, models.ResultSheet{ID: "certified", ElectionID: "e1", PollingStationID: "ps-1", Status: models.SheetStatusCertified})
	_, _, _ = store.Sheets().Create(ctx, models.ResultSheet{ID: "draft", ElectionID: "e1", PollingStationID: "ps-2", Status: models.SheetStatusDraft})
	require.NoError(t, store.Entries().Upsert(ctx, []models.ResultEntry{
		{SheetID: "certified", TargetKey: "candidate:x", CandidateID: strPtr("x"), Votes: 10},
		{SheetID: "certified", TargetKey: "poll_option:yes", PollOptionID: strPtr("yes"), Votes: 4},
		{SheetID: "draft", TargetKey: "candidate:x", CandidateID: strPtr("x"), Votes: 99},
	}))

	entries, err := store.Entries().ListCertifiedCandidateEntries(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 10, entries[0].Votes)
}

func TestStore_ReadersOnlySeeCommittedWrites(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	sheets := store.Sheets()
	sheet, _, err := sheets.Create(ctx, models.ResultSheet{ID: "a", ElectionID: "e1", PollingStationID: "ps-1", Status: models.SheetStatusDraft, Version: 1})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(ctx, func(txCtx context.Context) error {
		next := sheet
		next.Status = models.SheetStatusSubmitted
		next.Version = 2
		require.NoError(t, sheets.Update(txCtx, next, 1))

		inside, err := sheets.GetByID(txCtx, "a")
		require.NoError(t, err)
		assert.Equal(t, 2, inside.Version)

		outside, err := sheets.GetByID(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, models.SheetStatusDraft, outside.Status)
		assert.Equal(t, 1, outside.Version)
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := sheets.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, after.Version)
}
