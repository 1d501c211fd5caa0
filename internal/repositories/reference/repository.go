package reference

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tally/internal/repositories"
	"github.com/Ramsey-B/tally/pkg/database"
	"github.com/Ramsey-B/tally/pkg/models"
	"github.com/Ramsey-B/tally/pkg/tracing"
)

const (
	pollingStationTable = "polling_stations"
	geoUnitTable        = "geo_units"
	candidateTable      = "candidates"
	pollOptionTable     = "poll_options"
)

var (
	pollingStationStruct = database.NewStruct(new(models.PollingStation))
	geoUnitStruct        = database.NewStruct(new(models.GeoUnit))
	candidateStruct      = database.NewStruct(new(models.Candidate))
	pollOptionStruct     = database.NewStruct(new(models.PollOption))
)

// ReferenceRepository reads the election geography and ballot. Writes exist only for seeding.
type ReferenceRepository interface {
	GetStation(ctx context.Context, id string) (models.PollingStation, error)
	ListStations(ctx context.Context, electionID string) ([]models.PollingStation, error)
	ListGeoUnits(ctx context.Context) ([]models.GeoUnit, error)
	ListCandidates(ctx context.Context, electionID string) ([]models.Candidate, error)
	ListPollOptions(ctx context.Context, electionID string) ([]models.PollOption, error)

	UpsertGeoUnits(ctx context.Context, units []models.GeoUnit) error
	UpsertStations(ctx context.Context, stations []models.PollingStation) error
	UpsertCandidates(ctx context.Context, candidates []models.Candidate) error
	UpsertPollOptions(ctx context.Context, options []models.PollOption) error
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

func (r *Repository) GetStation(ctx context.Context, id string) (models.PollingStation, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.GetStation")
	defer span.End()

	sb := pollingStationStruct.SelectFrom(pollingStationTable)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var station models.PollingStation
	err := r.db.Conn(ctx).GetContext(ctx, &station, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PollingStation{}, repositories.NotFound("polling station %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("polling_station_id", id).Error("error getting polling station")
		return models.PollingStation{}, repositories.Internal("error getting polling station")
	}
	return station, nil
}

func (r *Repository) ListStations(ctx context.Context, electionID string) ([]models.PollingStation, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.ListStations")
	defer span.End()

	sb := pollingStationStruct.SelectFrom(pollingStationTable)
	sb.Where(sb.Equal("election_id", electionID))
	sb.OrderBy("id")
	query, args := sb.Build()

	stations := []models.PollingStation{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &stations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("election_id", electionID).Error("error listing polling stations")
		return nil, repositories.Internal("error listing polling stations")
	}
	return stations, nil
}

func (r *Repository) ListGeoUnits(ctx context.Context) ([]models.GeoUnit, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.ListGeoUnits")
	defer span.End()

	sb := geoUnitStruct.SelectFrom(geoUnitTable)
	sb.OrderBy("level", "name")
	query, args := sb.Build()

	units := []models.GeoUnit{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &units, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("error listing geo units")
		return nil, repositories.Internal("error listing geo units")
	}
	return units, nil
}

func (r *Repository) ListCandidates(ctx context.Context, electionID string) ([]models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.ListCandidates")
	defer span.End()

	sb := candidateStruct.SelectFrom(candidateTable)
	sb.Where(sb.Equal("election_id", electionID))
	sb.OrderBy("position_id", "id")
	query, args := sb.Build()

	candidates := []models.Candidate{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("election_id", electionID).Error("error listing candidates")
		return nil, repositories.Internal("error listing candidates")
	}
	return candidates, nil
}

func (r *Repository) ListPollOptions(ctx context.Context, electionID string) ([]models.PollOption, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.ListPollOptions")
	defer span.End()

	sb := pollOptionStruct.SelectFrom(pollOptionTable)
	sb.Where(sb.Equal("election_id", electionID))
	sb.OrderBy("id")
	query, args := sb.Build()

	options := []models.PollOption{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &options, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("election_id", electionID).Error("error listing poll options")
		return nil, repositories.Internal("error listing poll options")
	}
	return options, nil
}

func (r *Repository) upsert(ctx context.Context, table string, ib *database.InsertBuilder, count int, columns ...string) error {
	ub := ib.OnConflict("id")
	assignments := ectolinq.Map(columns, func(col string) string {
		return ub.Assign(col, database.Excluded(col))
	})
	ub.Set(assignments...)
	query, args := ib.Build()

	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table": table,
			"count": count,
		}).Error("error upserting reference data")
		return repositories.Internal("error upserting " + table)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"table": table,
		"count": count,
	}).Info("Upserted reference data")
	return nil
}

func (r *Repository) UpsertGeoUnits(ctx context.Context, units []models.GeoUnit) error {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.UpsertGeoUnits")
	defer span.End()

	if len(units) == 0 {
		return nil
	}
	rows := ectolinq.Map(units, func(u models.GeoUnit) any { return &u })
	return r.upsert(ctx, geoUnitTable, geoUnitStruct.InsertInto(geoUnitTable, rows...), len(units), "level", "name", "parent_id")
}

func (r *Repository) UpsertStations(ctx context.Context, stations []models.PollingStation) error {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.UpsertStations")
	defer span.End()

	if len(stations) == 0 {
		return nil
	}
	rows := ectolinq.Map(stations, func(s models.PollingStation) any { return &s })
	return r.upsert(ctx, pollingStationTable, pollingStationStruct.InsertInto(pollingStationTable, rows...), len(stations),
		"election_id", "name", "code", "electoral_area_id", "constituency_id", "region_id")
}

func (r *Repository) UpsertCandidates(ctx context.Context, candidates []models.Candidate) error {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.UpsertCandidates")
	defer span.End()

	if len(candidates) == 0 {
		return nil
	}
	rows := ectolinq.Map(candidates, func(c models.Candidate) any { return &c })
	return r.upsert(ctx, candidateTable, candidateStruct.InsertInto(candidateTable, rows...), len(candidates),
		"election_id", "position_id", "name", "party")
}

func (r *Repository) UpsertPollOptions(ctx context.Context, options []models.PollOption) error {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.UpsertPollOptions")
	defer span.End()

	if len(options) == 0 {
		return nil
	}
	rows := ectolinq.Map(options, func(o models.PollOption) any { return &o })
	return r.upsert(ctx, pollOptionTable, pollOptionStruct.InsertInto(pollOptionTable, rows...), len(options),
		"election_id", "label")
}
