package resultentry

import (
	"context"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tally/internal/repositories"
	"github.com/Ramsey-B/tally/pkg/database"
	"github.com/Ramsey-B/tally/pkg/models"
	"github.com/Ramsey-B/tally/pkg/tracing"
)

const resultEntryTable = "result_entries"

var resultEntryStruct = database.NewStruct(new(models.ResultEntry))

var entryColumns = []string{"sheet_id", "target_key", "position_id", "candidate_id", "poll_option_id", "votes", "updated_at"}

type ResultEntryRepository interface {
	// Upsert inserts entries or replaces the votes of existing (sheet_id, target_key) rows
	Upsert(ctx context.Context, entries []models.ResultEntry) error
	ListBySheet(ctx context.Context, sheetID string) ([]models.ResultEntry, error)
	CountBySheet(ctx context.Context, sheetID string) (int, error)
	// ListCertifiedCandidateEntries returns candidate entries of certified sheets of the election
	ListCertifiedCandidateEntries(ctx context.Context, electionID string) ([]models.ResultEntry, error)
}

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Upsert(ctx context.Context, entries []models.ResultEntry) error {
	ctx, span := tracing.StartSpan(ctx, "ResultEntryRepository.Upsert")
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	rows := ectolinq.Map(entries, func(entry models.ResultEntry) any {
		e := entry
		return &e
	})
	ib := resultEntryStruct.InsertInto(resultEntryTable, rows...)
	ub := ib.OnConflict("sheet_id", "target_key")
	ub.Set(
		ub.Assign("votes", database.Excluded("votes")),
		ub.Assign("position_id", database.Excluded("position_id")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)
	query, args := ib.Build()

	fields := map[string]any{
		"sheet_id": entries[0].SheetID,
		"count":    len(entries),
	}

	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("error upserting result entries")
		return repositories.Internal("error upserting result entries")
	}

	r.logger.WithContext(ctx).WithFields(fields).Info("Upserted result entries")
	return nil
}

func (r *Repository) ListBySheet(ctx context.Context, sheetID string) ([]models.ResultEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ResultEntryRepository.ListBySheet")
	defer span.End()

	sb := resultEntryStruct.SelectFrom(resultEntryTable)
	sb.Where(sb.Equal("sheet_id", sheetID))
	sb.OrderBy("target_key")
	query, args := sb.Build()

	entries := []models.ResultEntry{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("sheet_id", sheetID).Error("error listing result entries")
		return nil, repositories.Internal("error listing result entries")
	}
	return entries, nil
}

func (r *Repository) CountBySheet(ctx context.Context, sheetID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ResultEntryRepository.CountBySheet")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(resultEntryTable)
	sb.Where(sb.Equal("sheet_id", sheetID))
	query, args := sb.Build()

	var count int
	if err := r.db.Conn(ctx).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("sheet_id", sheetID).Error("error counting result entries")
		return 0, repositories.Internal("error counting result entries")
	}
	return count, nil
}

func (r *Repository) ListCertifiedCandidateEntries(ctx context.Context, electionID string) ([]models.ResultEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ResultEntryRepository.ListCertifiedCandidateEntries")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(ectolinq.Map(entryColumns, func(col string) string { return "e." + col })...)
	sb.From(resultEntryTable + " e")
	sb.Join("result_sheets s", "s.id = e.sheet_id")
	sb.Where(
		sb.Equal("s.election_id", electionID),
		sb.Equal("s.status", string(models.SheetStatusCertified)),
		sb.IsNotNull("e.candidate_id"),
	)
	query, args := sb.Build()

	entries := []models.ResultEntry{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("election_id", electionID).Error("error listing certified entries")
		return nil, repositories.Internal("error listing certified entries")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"election_id": electionID,
		"count":       len(entries),
	}).Debug("Listed certified candidate entries")
	return entries, nil
}
