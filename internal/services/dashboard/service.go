package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/tally/internal/repositories/activity"
	"github.com/Ramsey-B/tally/internal/repositories/reference"
	"github.com/Ramsey-B/tally/internal/repositories/resultentry"
	"github.com/Ramsey-B/tally/internal/repositories/resultsheet"
	"github.com/Ramsey-B/tally/pkg/aggregation"
	"github.com/Ramsey-B/tally/pkg/metrics"
	"github.com/Ramsey-B/tally/pkg/models"
	"github.com/Ramsey-B/tally/pkg/redis"
	"github.com/Ramsey-B/tally/pkg/tracing"
)

const (
	DefaultFeedLimit = 50
	MaxFeedLimit     = 500
)

type Dependencies struct {
	Sheets    resultsheet.ResultSheetRepository
	Entries   resultentry.ResultEntryRepository
	Activity  activity.ActivityRepository
	Reference reference.ReferenceRepository
	// Cache is optional; without it every read is computed from the store
	Cache  *redis.SnapshotCache
	Logger ectologger.Logger

	FeedDefaultLimit int
	FeedMaxLimit     int
}

// Overview is the election-wide completion picture
type Overview struct {
	Summary         aggregation.Summary         `json:"summary"`
	StatusBreakdown aggregation.StatusBreakdown `json:"status_breakdown"`
}

// Dashboard is every dashboard part in one response
type Dashboard struct {
	Summary           aggregation.Summary          `json:"summary"`
	StatusBreakdown   aggregation.StatusBreakdown  `json:"status_breakdown"`
	RegionalBreakdown []aggregation.Node           `json:"regional_breakdown"`
	TopCandidates     []aggregation.CandidateTally `json:"top_candidates"`
	GeneratedAt       time.Time                    `json:"generated_at"`
}

// Service answers dashboard reads. Views are folds over the current rows of an election.
type Service struct {
	sheets    resultsheet.ResultSheetRepository
	entries   resultentry.ResultEntryRepository
	activity  activity.ActivityRepository
	reference reference.ReferenceRepository
	cache     *redis.SnapshotCache
	logger    ectologger.Logger

	feedDefault int
	feedMax     int
	now         func() time.Time
}

func NewService(deps Dependencies) *Service {
	feedDefault := deps.FeedDefaultLimit
	if feedDefault <= 0 {
		feedDefault = DefaultFeedLimit
	}
	feedMax := deps.FeedMaxLimit
	if feedMax <= 0 {
		feedMax = MaxFeedLimit
	}
	if feedDefault > feedMax {
		feedDefault = feedMax
	}

	return &Service{
		sheets:      deps.Sheets,
		entries:     deps.Entries,
		activity:    deps.Activity,
		reference:   deps.Reference,
		cache:       deps.Cache,
		logger:      deps.Logger,
		feedDefault: feedDefault,
		feedMax:     feedMax,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// load reads everything an aggregation needs for one election
func (s *Service) load(ctx context.Context, electionID string) (*aggregation.Aggregator, error) {
	ctx, span := tracing.StartSpan(ctx, "dashboard.load")
	defer span.End()

	stations, err := s.reference.ListStations(ctx, electionID)
	if err != nil {
		return nil, err
	}
	units, err := s.reference.ListGeoUnits(ctx)
	if err != nil {
		return nil, err
	}
	candidates, err := s.reference.ListCandidates(ctx, electionID)
	if err != nil {
		return nil, err
	}
	sheets, err := s.sheets.List(ctx, models.SheetFilter{ElectionID: electionID})
	if err != nil {
		return nil, err
	}
	list, err := s.entries.ListCertifiedCandidateEntries(ctx, electionID)
	if err != nil {
		return nil, err
	}

	return aggregation.New(aggregation.Input{
		Stations:   stations,
		Sheets:     sheets,
		Entries:    list,
		GeoUnits:   units,
		Candidates: candidates,
	}), nil
}

// compute loads the election and runs fn over it, recording how long the fold took
func compute[T any](s *Service, electionID, view string, fn func(a *aggregation.Aggregator) T) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		start := time.Now()
		var zero T

		a, err := s.load(ctx, electionID)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"election_id": electionID,
				"view":        view,
			}).Error("failed to load election for aggregation")
			return zero, err
		}

		result := fn(a)
		metrics.RecordAggregation(view, time.Since(start).Seconds())
		return result, nil
	}
}

// Summary returns completion counts and the exact status breakdown
func (s *Service) Summary(ctx context.Context, electionID string) (Overview, error) {
	return redis.Fetch(ctx, s.cache, electionID, "summary", compute(s, electionID, "summary", func(a *aggregation.Aggregator) Overview {
		return Overview{Summary: a.Summary(), StatusBreakdown: a.StatusBreakdown()}
	}))
}

// Regions returns the regional breakdown, narrowed to regionID when set
func (s *Service) Regions(ctx context.Context, electionID, regionID string) ([]aggregation.Node, error) {
	return s.Breakdown(ctx, electionID, models.GeoLevelRegion, regionID)
}

// Breakdown groups the election by any geographic level
func (s *Service) Breakdown(ctx context.Context, electionID string, level models.GeoLevel, regionID string) ([]aggregation.Node, error) {
	if !level.IsValid() {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown level '%s'", level)
	}

	view := fmt.Sprintf("breakdown:%s:%s", level, regionID)
	return redis.Fetch(ctx, s.cache, electionID, view, compute(s, electionID, "breakdown", func(a *aggregation.Aggregator) []aggregation.Node {
		return a.Breakdown(level, regionID)
	}))
}

// TopCandidates ranks candidates on certified sheets
func (s *Service) TopCandidates(ctx context.Context, electionID string, opts aggregation.TopCandidatesOptions) ([]aggregation.CandidateTally, error) {
	if opts.Limit < 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "limit cannot be negative")
	}

	view := fmt.Sprintf("top:%s:%s:%d", opts.RegionID, opts.PositionID, opts.Limit)
	return redis.Fetch(ctx, s.cache, electionID, view, compute(s, electionID, "top_candidates", func(a *aggregation.Aggregator) []aggregation.CandidateTally {
		return a.TopCandidates(opts)
	}))
}

// Dashboard returns every part from a single snapshot of the election
func (s *Service) Dashboard(ctx context.Context, electionID, regionID string) (Dashboard, error) {
	view := fmt.Sprintf("dashboard:%s", regionID)
	return redis.Fetch(ctx, s.cache, electionID, view, compute(s, electionID, "dashboard", func(a *aggregation.Aggregator) Dashboard {
		return Dashboard{
			Summary:           a.Summary(),
			StatusBreakdown:   a.StatusBreakdown(),
			RegionalBreakdown: a.RegionalBreakdown(regionID),
			TopCandidates:     a.TopCandidates(aggregation.TopCandidatesOptions{RegionID: regionID, Limit: aggregation.DefaultTopCandidatesLimit}),
			GeneratedAt:       s.now(),
		}
	}))
}

// ActivityFeed returns the newest events of the election. It is never cached.
func (s *Service) ActivityFeed(ctx context.Context, electionID string, limit int) ([]models.ActivityEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "dashboard.ActivityFeed")
	defer span.End()

	switch {
	case limit < 0:
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "limit cannot be negative")
	case limit == 0:
		limit = s.feedDefault
	case limit > s.feedMax:
		limit = s.feedMax
	}

	return s.activity.ListByElection(ctx, electionID, limit)
}
