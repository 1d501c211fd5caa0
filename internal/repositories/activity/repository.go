package activity

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tally/internal/repositories"
	"github.com/Ramsey-B/tally/pkg/database"
	"github.com/Ramsey-B/tally/pkg/models"
	"github.com/Ramsey-B/tally/pkg/tracing"
)

const activityTable = "activity_events"

var activityStruct = database.NewStruct(new(models.ActivityEvent))

// ActivityRepository is append-only. Events are ordered by the insertion sequence.
type ActivityRepository interface {
	Append(ctx context.Context, event models.ActivityEvent) error
	ListByElection(ctx context.Context, electionID string, limit int) ([]models.ActivityEvent, error)
	ListBySheet(ctx context.Context, sheetID string) ([]models.ActivityEvent, error)
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

func (r *Repository) Append(ctx context.Context, event models.ActivityEvent) error {
	ctx, span := tracing.StartSpan(ctx, "ActivityRepository.Append")
	defer span.End()

	ib := activityStruct.InsertInto(activityTable, &event)
	query, args := ib.Build()

	fields := map[string]any{
		"event_id": event.ID,
		"sheet_id": event.SheetID,
		"action":   event.Action,
		"version":  event.Version,
	}

	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("error appending activity event")
		return repositories.Internal("error appending activity event")
	}

	r.logger.WithContext(ctx).WithFields(fields).Info("Appended activity event")
	return nil
}

func (r *Repository) ListByElection(ctx context.Context, electionID string, limit int) ([]models.ActivityEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "ActivityRepository.ListByElection")
	defer span.End()

	sb := activityStruct.SelectFrom(activityTable)
	sb.Where(sb.Equal("election_id", electionID))
	sb.OrderBy("seq").Desc()
	sb.Limit(limit)
	query, args := sb.Build()

	events := []models.ActivityEvent{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"election_id": electionID,
			"limit":       limit,
		}).Error("error listing activity feed")
		return nil, repositories.Internal("error listing activity feed")
	}
	return events, nil
}

func (r *Repository) ListBySheet(ctx context.Context, sheetID string) ([]models.ActivityEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "ActivityRepository.ListBySheet")
	defer span.End()

	sb := activityStruct.SelectFrom(activityTable)
	sb.Where(sb.Equal("sheet_id", sheetID))
	sb.OrderBy("seq").Desc()
	query, args := sb.Build()

	events := []models.ActivityEvent{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("sheet_id", sheetID).Error("error listing sheet history")
		return nil, repositories.Internal("error listing sheet history")
	}
	return events, nil
}
