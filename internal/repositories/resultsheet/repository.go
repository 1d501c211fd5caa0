package resultsheet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tally/internal/repositories"
	"github.com/Ramsey-B/tally/pkg/database"
	collationerrors "github.com/Ramsey-B/tally/pkg/errors"
	"github.com/Ramsey-B/tally/pkg/models"
	"github.com/Ramsey-B/tally/pkg/tracing"
)

type ResultSheetRepository interface {
	// Create inserts sheet unless the station already has one for the election. The stored
	// sheet is returned together with whether it was created by this call.
	Create(ctx context.Context, sheet models.ResultSheet) (models.ResultSheet, bool, error)
	GetByID(ctx context.Context, id string) (models.ResultSheet, error)
	GetByStation(ctx context.Context, electionID, stationID string) (models.ResultSheet, error)
	// Update persists sheet only if the stored version still equals expectedVersion
	Update(ctx context.Context, sheet models.ResultSheet, expectedVersion int) error
	List(ctx context.Context, filter models.SheetFilter) ([]models.ResultSheet, error)
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

func (r *Repository) Create(ctx context.Context, sheet models.ResultSheet) (models.ResultSheet, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ResultSheetRepository.Create")
	defer span.End()

	ib := resultSheetStruct.InsertInto(resultSheetTable, FromResultSheet(sheet))
	ib.OnConflictDoNothing("election_id", "polling_station_id")
	query, args := ib.Build()

	res, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"election_id":        sheet.ElectionID,
			"polling_station_id": sheet.PollingStationID,
		}).Error("error creating result sheet")
		return models.ResultSheet{}, false, repositories.Internal("error creating result sheet")
	}

	created := false
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		created = true
	}

	stored, err := r.GetByStation(ctx, sheet.ElectionID, sheet.PollingStationID)
	if err != nil {
		return models.ResultSheet{}, false, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"sheet_id":           stored.ID,
		"election_id":        stored.ElectionID,
		"polling_station_id": stored.PollingStationID,
		"created":            created,
	}).Info("Opened result sheet")
	return stored, created, nil
}

func (r *Repository) get(ctx context.Context, fields map[string]any, conds func(sb *database.SelectBuilder) []string) (models.ResultSheet, error) {
	sb := resultSheetStruct.SelectFrom(resultSheetTable)
	sb.Where(conds(sb)...)
	query, args := sb.Build()

	var row ResultSheetRow
	err := r.db.Conn(ctx).GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ResultSheet{}, repositories.NotFound("result sheet not found")
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("error getting result sheet")
		return models.ResultSheet{}, repositories.Internal("error getting result sheet")
	}
	return ToResultSheet(&row), nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (models.ResultSheet, error) {
	ctx, span := tracing.StartSpan(ctx, "ResultSheetRepository.GetByID")
	defer span.End()

	return r.get(ctx, map[string]any{"sheet_id": id}, func(sb *database.SelectBuilder) []string {
		return []string{sb.Equal("id", id)}
	})
}

func (r *Repository) GetByStation(ctx context.Context, electionID, stationID string) (models.ResultSheet, error) {
	ctx, span := tracing.StartSpan(ctx, "ResultSheetRepository.GetByStation")
	defer span.End()

	return r.get(ctx, map[string]any{"election_id": electionID, "polling_station_id": stationID}, func(sb *database.SelectBuilder) []string {
		return []string{sb.Equal("election_id", electionID), sb.Equal("polling_station_id", stationID)}
	})
}

func (r *Repository) Update(ctx context.Context, sheet models.ResultSheet, expectedVersion int) error {
	ctx, span := tracing.StartSpan(ctx, "ResultSheetRepository.Update")
	defer span.End()

	row := FromResultSheet(sheet)
	ub := database.NewUpdateBuilder()
	ub.Update(resultSheetTable)
	ub.Set(
		ub.Assign("status", row.Status),
		ub.Assign("total_registered_voters", row.TotalRegisteredVoters),
		ub.Assign("total_votes_cast", row.TotalVotesCast),
		ub.Assign("total_valid_votes", row.TotalValidVotes),
		ub.Assign("total_rejected_votes", row.TotalRejectedVotes),
		ub.Assign("version", row.Version),
		ub.Assign("updated_at", row.UpdatedAt),
		ub.Assign("submitted_at", row.SubmittedAt),
		ub.Assign("verified_at", row.VerifiedAt),
		ub.Assign("approved_at", row.ApprovedAt),
		ub.Assign("certified_at", row.CertifiedAt),
		ub.Assign("rejection_reason", row.RejectionReason),
	)
	ub.Where(ub.Equal("id", sheet.ID), ub.Equal("version", expectedVersion))
	query, args := ub.Build()

	fields := map[string]any{
		"sheet_id":         sheet.ID,
		"status":           sheet.Status,
		"expected_version": expectedVersion,
		"version":          sheet.Version,
	}

	res, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("error updating result sheet")
		return repositories.Internal("error updating result sheet")
	}

	n, err := res.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("error reading affected rows")
		return repositories.Internal("error updating result sheet")
	}
	if n == 0 {
		r.logger.WithContext(ctx).WithFields(fields).Warn("Result sheet version conflict")
		return collationerrors.Newf(collationerrors.KindStaleState, "sheet was modified after version %d was read", expectedVersion).
			WithSheet(sheet.ID)
	}

	r.logger.WithContext(ctx).WithFields(fields).Debug("Updated result sheet")
	return nil
}

func (r *Repository) List(ctx context.Context, filter models.SheetFilter) ([]models.ResultSheet, error) {
	ctx, span := tracing.StartSpan(ctx, "ResultSheetRepository.List")
	defer span.End()

	sb := resultSheetStruct.SelectFrom(resultSheetTable)
	sb.Where(sb.Equal("election_id", filter.ElectionID))
	if filter.Status != "" {
		sb.Where(sb.Equal("status", string(filter.Status)))
	}
	sb.OrderBy("created_at", "id")
	query, args := sb.Build()

	var rows []ResultSheetRow
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"election_id": filter.ElectionID,
			"status":      filter.Status,
		}).Error("error listing result sheets")
		return nil, repositories.Internal("error listing result sheets")
	}

	sheets := make([]models.ResultSheet, 0, len(rows))
	for i := range rows {
		sheets = append(sheets, ToResultSheet(&rows[i]))
	}
	return sheets, nil
}
