package collation

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/tally/internal/repositories"
	"github.com/Ramsey-B/tally/internal/repositories/activity"
	"github.com/Ramsey-B/tally/internal/repositories/reference"
	"github.com/Ramsey-B/tally/internal/repositories/resultentry"
	"github.com/Ramsey-B/tally/internal/repositories/resultsheet"
	"github.com/Ramsey-B/tally/pkg/consistency"
	"github.com/Ramsey-B/tally/pkg/entries"
	collationerrors "github.com/Ramsey-B/tally/pkg/errors"
	"github.com/Ramsey-B/tally/pkg/kafka"
	"github.com/Ramsey-B/tally/pkg/metrics"
	"github.com/Ramsey-B/tally/pkg/models"
	"github.com/Ramsey-B/tally/pkg/tracing"
	"github.com/Ramsey-B/tally/pkg/workflow"
)

// Transactor runs fn inside one transaction; repositories called with the ctx passed to fn join it
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Invalidator retires cached dashboard views of an election
type Invalidator interface {
	Invalidate(ctx context.Context, electionID string) error
}

type Dependencies struct {
	Tx          Transactor
	Sheets      resultsheet.ResultSheetRepository
	Entries     resultentry.ResultEntryRepository
	Activity    activity.ActivityRepository
	Reference   reference.ReferenceRepository
	Publisher   kafka.ActivityPublisher
	Invalidator Invalidator
	Logger      ectologger.Logger
}

// SheetView is a sheet together with everything a reviewer needs to act on it
type SheetView struct {
	models.ResultSheet
	Entries        []models.ResultEntry `json:"entries"`
	Consistency    consistency.Report   `json:"consistency"`
	AllowedActions []workflow.Action    `json:"allowed_actions"`
}

// TransitionResult is the outcome of an accepted workflow action
type TransitionResult struct {
	Sheet SheetView            `json:"sheet"`
	Event models.ActivityEvent `json:"event"`
}

// Service owns every write to result sheets, their entries and the activity log
type Service struct {
	tx          Transactor
	sheets      resultsheet.ResultSheetRepository
	entries     resultentry.ResultEntryRepository
	activity    activity.ActivityRepository
	reference   reference.ReferenceRepository
	publisher   kafka.ActivityPublisher
	invalidator Invalidator
	logger      ectologger.Logger
	now         func() time.Time
}

func NewService(deps Dependencies) *Service {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = kafka.NoopPublisher{}
	}
	return &Service{
		tx:          deps.Tx,
		sheets:      deps.Sheets,
		entries:     deps.Entries,
		activity:    deps.Activity,
		reference:   deps.Reference,
		publisher:   publisher,
		invalidator: deps.Invalidator,
		logger:      deps.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func requireActor(actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "an acting official is required")
	}
	return nil
}

// OpenSheet returns the sheet of a polling station, creating it in draft on first call
func (s *Service) OpenSheet(ctx context.Context, electionID, stationID, actorID string) (SheetView, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "collation.OpenSheet")
	defer span.End()

	if err := requireActor(actorID); err != nil {
		return SheetView{}, false, err
	}

	station, err := s.reference.GetStation(ctx, stationID)
	if err != nil {
		return SheetView{}, false, err
	}
	if station.ElectionID != electionID {
		return SheetView{}, false, repositories.NotFound("polling station %s is not part of election %s", stationID, electionID)
	}

	now := s.now()
	var (
		sheet   models.ResultSheet
		created bool
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		sheet, created, err = s.sheets.Create(ctx, models.ResultSheet{
			ID:               uuid.NewString(),
			ElectionID:       electionID,
			PollingStationID: stationID,
			Status:           models.SheetStatusDraft,
			Version:          1,
			CreatedBy:        actorID,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		return err
	})
	if err != nil {
		return SheetView{}, false, err
	}

	if created {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"sheet_id":           sheet.ID,
			"election_id":        electionID,
			"polling_station_id": stationID,
			"actor_id":           actorID,
		}).Info("Opened result sheet")
		s.invalidate(ctx, electionID)
	}

	view, err := s.view(ctx, sheet)
	return view, created, err
}

func (s *Service) GetSheet(ctx context.Context, sheetID string) (SheetView, error) {
	ctx, span := tracing.StartSpan(ctx, "collation.GetSheet")
	defer span.End()

	sheet, err := s.sheets.GetByID(ctx, sheetID)
	if err != nil {
		return SheetView{}, err
	}
	return s.view(ctx, sheet)
}

func (s *Service) ListSheets(ctx context.Context, filter models.SheetFilter) ([]models.ResultSheet, error) {
	ctx, span := tracing.StartSpan(ctx, "collation.ListSheets")
	defer span.End()

	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown status %q", filter.Status)
	}
	return s.sheets.List(ctx, filter)
}

func (s *Service) ListEntries(ctx context.Context, sheetID string) ([]models.ResultEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "collation.ListEntries")
	defer span.End()

	if _, err := s.sheets.GetByID(ctx, sheetID); err != nil {
		return nil, err
	}
	return s.entries.ListBySheet(ctx, sheetID)
}

// Consistency compares the stored entries of a sheet with its reported totals
func (s *Service) Consistency(ctx context.Context, sheetID string) (consistency.Report, error) {
	ctx, span := tracing.StartSpan(ctx, "collation.Consistency")
	defer span.End()

	view, err := s.GetSheet(ctx, sheetID)
	if err != nil {
		return consistency.Report{}, err
	}
	return view.Consistency, nil
}

// History returns every activity event of a sheet, newest first
func (s *Service) History(ctx context.Context, sheetID string) ([]models.ActivityEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "collation.History")
	defer span.End()

	if _, err := s.sheets.GetByID(ctx, sheetID); err != nil {
		return nil, err
	}
	return s.activity.ListBySheet(ctx, sheetID)
}

// BulkAddEntries upserts a batch of entries onto a draft sheet. The batch is validated as a
// whole before anything is written, and the entries are committed together with the
// version bump of the sheet.
func (s *Service) BulkAddEntries(ctx context.Context, sheetID string, expectedVersion int, inputs []models.EntryInput, actorID string) (SheetView, error) {
	ctx, span := tracing.StartSpan(ctx, "collation.BulkAddEntries")
	defer span.End()

	if err := requireActor(actorID); err != nil {
		return SheetView{}, err
	}

	var (
		sheet   models.ResultSheet
		written int
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.sheets.GetByID(ctx, sheetID)
		if err != nil {
			return err
		}
		if err := s.ensureWritable(current, expectedVersion, "bulk_add_entries"); err != nil {
			return err
		}

		now := s.now()
		batch, err := entries.ValidateBatch(current.ID, inputs, now)
		if err != nil {
			if ce, ok := collationerrors.AsCollationError(err); ok {
				ce.WithSheet(current.ID).WithState(string(current.Status), current.Version)
			}
			return err
		}

		if err := s.entries.Upsert(ctx, batch); err != nil {
			return err
		}

		sheet = current
		sheet.Version = current.Version + 1
		sheet.UpdatedAt = now
		written = len(batch)
		return s.sheets.Update(ctx, sheet, expectedVersion)
	})
	if err != nil {
		err = s.withCurrentState(ctx, sheetID, "bulk_add_entries", err)
		s.recordRejection(err)
		return SheetView{}, err
	}

	metrics.RecordEntriesUpserted(written)
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"sheet_id": sheet.ID,
		"version":  sheet.Version,
		"entries":  written,
		"actor_id": actorID,
	}).Info("Saved result entries")
	s.invalidate(ctx, sheet.ElectionID)

	return s.savedView(ctx, sheet)
}

// UpdateTotals replaces the four reported totals of a draft sheet
func (s *Service) UpdateTotals(ctx context.Context, sheetID string, expectedVersion int, totals models.Totals, actorID string) (SheetView, error) {
	ctx, span := tracing.StartSpan(ctx, "collation.UpdateTotals")
	defer span.End()

	if err := requireActor(actorID); err != nil {
		return SheetView{}, err
	}

	var sheet models.ResultSheet
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.sheets.GetByID(ctx, sheetID)
		if err != nil {
			return err
		}
		if err := s.ensureWritable(current, expectedVersion, "update_totals"); err != nil {
			return err
		}
		if err := validateTotals(totals); err != nil {
			return err.WithSheet(current.ID).WithState(string(current.Status), current.Version)
		}

		sheet = current
		sheet.Totals = totals
		sheet.Version = current.Version + 1
		sheet.UpdatedAt = s.now()
		return s.sheets.Update(ctx, sheet, expectedVersion)
	})
	if err != nil {
		err = s.withCurrentState(ctx, sheetID, "update_totals", err)
		s.recordRejection(err)
		return SheetView{}, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"sheet_id": sheet.ID,
		"version":  sheet.Version,
		"actor_id": actorID,
	}).Info("Saved result sheet totals")
	s.invalidate(ctx, sheet.ElectionID)

	return s.savedView(ctx, sheet)
}

func validateTotals(totals models.Totals) *collationerrors.CollationError {
	fields := []struct {
		name  string
		value *int
	}{
		{"total_registered_voters", totals.TotalRegisteredVoters},
		{"total_votes_cast", totals.TotalVotesCast},
		{"total_valid_votes", totals.TotalValidVotes},
		{"total_rejected_votes", totals.TotalRejectedVotes},
	}
	for _, field := range fields {
		if field.value != nil && *field.value < 0 {
			return collationerrors.Newf(collationerrors.KindInvalidVoteCount, "%s cannot be negative, got %d", field.name, *field.value)
		}
		if field.value != nil && *field.value > entries.MaxVotes {
			return collationerrors.Newf(collationerrors.KindInvalidVoteCount, "%s exceeds the maximum of %d", field.name, entries.MaxVotes)
		}
	}
	return nil
}

func (s *Service) ensureWritable(sheet models.ResultSheet, expectedVersion int, action string) error {
	if err := workflow.EnsureVersion(sheet, expectedVersion); err != nil {
		if ce, ok := collationerrors.AsCollationError(err); ok {
			ce.WithAction(action)
		}
		return err
	}
	if err := workflow.EnsureEditable(sheet); err != nil {
		if ce, ok := collationerrors.AsCollationError(err); ok {
			ce.WithAction(action)
		}
		return err
	}
	return nil
}

// Transition applies a workflow action. The sheet update and its activity event are
// committed together; the event is published after commit.
func (s *Service) Transition(ctx context.Context, sheetID string, cmd workflow.Command) (TransitionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "collation.Transition")
	defer span.End()

	if err := requireActor(cmd.ActorID); err != nil {
		return TransitionResult{}, err
	}

	var (
		next  models.ResultSheet
		event models.ActivityEvent
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.sheets.GetByID(ctx, sheetID)
		if err != nil {
			return err
		}

		if cmd.Action == workflow.ActionSubmit {
			if cmd.EntryCount, err = s.entries.CountBySheet(ctx, current.ID); err != nil {
				return err
			}
		}

		next, event, err = workflow.Apply(current, cmd, s.now())
		if err != nil {
			return err
		}

		if err := s.sheets.Update(ctx, next, cmd.ExpectedVersion); err != nil {
			return err
		}
		return s.activity.Append(ctx, event)
	})
	if err != nil {
		err = s.withCurrentState(ctx, sheetID, string(cmd.Action), err)
		s.recordRejection(err)
		return TransitionResult{}, err
	}

	metrics.RecordTransition(string(cmd.Action))
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"sheet_id":    next.ID,
		"election_id": next.ElectionID,
		"action":      cmd.Action,
		"from_status": event.FromStatus,
		"to_status":   event.ToStatus,
		"version":     next.Version,
		"actor_id":    cmd.ActorID,
	}).Info("Result sheet transitioned")

	if err := s.publisher.PublishActivity(ctx, event); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("event_id", event.ID).Warn("failed to publish activity event")
	}
	s.invalidate(ctx, next.ElectionID)

	view, err := s.view(ctx, next)
	if err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Sheet: view, Event: event}, nil
}

// withCurrentState completes a StaleState raised by the version guard of Update, which
// only knows the sheet id, with the state a concurrent writer committed.
func (s *Service) withCurrentState(ctx context.Context, sheetID, action string, err error) error {
	ce, ok := collationerrors.AsCollationError(err)
	if !ok || ce.Kind != collationerrors.KindStaleState || ce.CurrentVersion != nil {
		return err
	}
	if ce.Action == "" {
		ce.WithAction(action)
	}

	current, getErr := s.sheets.GetByID(ctx, sheetID)
	if getErr != nil {
		s.logger.WithContext(ctx).WithError(getErr).WithField("sheet_id", sheetID).Warn("failed to reload result sheet after a write conflict")
		return err
	}
	ce.WithSheet(current.ID).WithState(string(current.Status), current.Version)
	return err
}

func (s *Service) view(ctx context.Context, sheet models.ResultSheet) (SheetView, error) {
	list, err := s.entries.ListBySheet(ctx, sheet.ID)
	if err != nil {
		return SheetView{}, err
	}
	return SheetView{
		ResultSheet:    sheet,
		Entries:        list,
		Consistency:    consistency.Check(sheet.Totals, list),
		AllowedActions: workflow.AllowedActions(sheet.Status),
	}, nil
}

func (s *Service) savedView(ctx context.Context, sheet models.ResultSheet) (SheetView, error) {
	view, err := s.view(ctx, sheet)
	if err != nil {
		return SheetView{}, err
	}
	if view.Consistency.Discrepancy {
		metrics.RecordDiscrepancy()
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"sheet_id": sheet.ID,
			"delta":    view.Consistency.Delta,
		}).Info("Result sheet entries disagree with reported valid votes")
	}
	return view, nil
}

func (s *Service) invalidate(ctx context.Context, electionID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, electionID); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("election_id", electionID).Warn("failed to invalidate dashboard cache")
	}
}

func (s *Service) recordRejection(err error) {
	ce, ok := collationerrors.AsCollationError(err)
	if !ok {
		return
	}
	metrics.RecordRejectedCommand(string(ce.Kind))
	if ce.Kind == collationerrors.KindStaleState {
		metrics.RecordWriteConflict()
	}
}
