package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/Ramsey-B/tally/internal/repositories"
	collationerrors "github.com/Ramsey-B/tally/pkg/errors"
	"github.com/Ramsey-B/tally/pkg/models"
)

type txKey struct{}

type state struct {
	sheets       map[string]models.ResultSheet
	sheetStation map[string]string
	entries      map[string]map[string]models.ResultEntry
	events       []models.ActivityEvent
	stations     map[string]models.PollingStation
	geoUnits     map[string]models.GeoUnit
	candidates   map[string]models.Candidate
	pollOptions  map[string]models.PollOption
}

func (s state) clone() state {
	entries := make(map[string]map[string]models.ResultEntry, len(s.entries))
	for sheetID, bySheet := range s.entries {
		entries[sheetID] = maps.Clone(bySheet)
	}
	return state{
		sheets:       maps.Clone(s.sheets),
		sheetStation: maps.Clone(s.sheetStation),
		entries:      entries,
		events:       slices.Clone(s.events),
		stations:     maps.Clone(s.stations),
		geoUnits:     maps.Clone(s.geoUnits),
		candidates:   maps.Clone(s.candidates),
		pollOptions:  maps.Clone(s.pollOptions),
	}
}

// Store keeps every table in process memory. A transaction works on a private copy that
// replaces the committed tables only when it succeeds, so readers outside it never see
// its writes early and never see them at all after a rollback. Transactions and
// standalone writes are serialized.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data state
}

func NewStore() *Store {
	return &Store{
		data: state{
			sheets:       map[string]models.ResultSheet{},
			sheetStation: map[string]string{},
			entries:      map[string]map[string]models.ResultEntry{},
			stations:     map[string]models.PollingStation{},
			geoUnits:     map[string]models.GeoUnit{},
			candidates:   map[string]models.Candidate{},
			pollOptions:  map[string]models.PollOption{},
		},
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, &working)); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = working
	s.mu.Unlock()
	return nil
}

// read runs fn on the working copy of the open transaction, or on the committed tables
func (s *Store) read(ctx context.Context, fn func(data *state)) {
	if tx, ok := ctx.Value(txKey{}).(*state); ok {
		fn(tx)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.data)
}

// write runs fn on the working copy of the open transaction, or commits it directly
func (s *Store) write(ctx context.Context, fn func(data *state) error) error {
	if tx, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(tx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.data)
}

func (s *Store) Sheets() *SheetStore {
	return &SheetStore{s}
}

func (s *Store) Entries() *EntryStore {
	return &EntryStore{s}
}

func (s *Store) Activity() *ActivityStore {
	return &ActivityStore{s}
}

func (s *Store) Reference() *ReferenceStore {
	return &ReferenceStore{s}
}

func stationKey(electionID, stationID string) string {
	return electionID + "|" + stationID
}

type SheetStore struct {
	*Store
}

func (s *SheetStore) Create(ctx context.Context, sheet models.ResultSheet) (models.ResultSheet, bool, error) {
	var (
		stored  models.ResultSheet
		created bool
	)
	err := s.write(ctx, func(data *state) error {
		key := stationKey(sheet.ElectionID, sheet.PollingStationID)
		if id, exists := data.sheetStation[key]; exists {
			stored = data.sheets[id]
			return nil
		}
		data.sheets[sheet.ID] = sheet
		data.sheetStation[key] = sheet.ID
		stored, created = sheet, true
		return nil
	})
	return stored, created, err
}

func (s *SheetStore) GetByID(ctx context.Context, id string) (models.ResultSheet, error) {
	var (
		sheet  models.ResultSheet
		exists bool
	)
	s.read(ctx, func(data *state) {
		sheet, exists = data.sheets[strings.TrimSpace(id)]
	})
	if !exists {
		return models.ResultSheet{}, repositories.NotFound("result sheet not found")
	}
	return sheet, nil
}

func (s *SheetStore) GetByStation(ctx context.Context, electionID, stationID string) (models.ResultSheet, error) {
	var (
		sheet  models.ResultSheet
		exists bool
	)
	s.read(ctx, func(data *state) {
		var id string
		if id, exists = data.sheetStation[stationKey(electionID, stationID)]; exists {
			sheet = data.sheets[id]
		}
	})
	if !exists {
		return models.ResultSheet{}, repositories.NotFound("result sheet not found")
	}
	return sheet, nil
}

func (s *SheetStore) Update(ctx context.Context, sheet models.ResultSheet, expectedVersion int) error {
	return s.write(ctx, func(data *state) error {
		current, exists := data.sheets[sheet.ID]
		if !exists {
			return repositories.NotFound("result sheet not found")
		}
		if current.Version != expectedVersion {
			return collationerrors.Newf(collationerrors.KindStaleState, "sheet was modified after version %d was read", expectedVersion).
				WithSheet(sheet.ID)
		}
		data.sheets[sheet.ID] = sheet
		return nil
	})
}

func (s *SheetStore) List(ctx context.Context, filter models.SheetFilter) ([]models.ResultSheet, error) {
	sheets := make([]models.ResultSheet, 0)
	s.read(ctx, func(data *state) {
		for _, sheet := range data.sheets {
			if sheet.ElectionID != filter.ElectionID {
				continue
			}
			if filter.Status != "" && sheet.Status != filter.Status {
				continue
			}
			sheets = append(sheets, sheet)
		}
	})
	slices.SortFunc(sheets, func(a, b models.ResultSheet) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return sheets, nil
}

type EntryStore struct {
	*Store
}

func (s *EntryStore) Upsert(ctx context.Context, entries []models.ResultEntry) error {
	return s.write(ctx, func(data *state) error {
		for _, entry := range entries {
			bySheet, ok := data.entries[entry.SheetID]
			if !ok {
				bySheet = map[string]models.ResultEntry{}
				data.entries[entry.SheetID] = bySheet
			}
			bySheet[entry.TargetKey] = entry
		}
		return nil
	})
}

func (s *EntryStore) ListBySheet(ctx context.Context, sheetID string) ([]models.ResultEntry, error) {
	var entries []models.ResultEntry
	s.read(ctx, func(data *state) {
		entries = slices.Collect(maps.Values(data.entries[sheetID]))
	})
	slices.SortFunc(entries, func(a, b models.ResultEntry) int {
		return strings.Compare(a.TargetKey, b.TargetKey)
	})
	if entries == nil {
		entries = []models.ResultEntry{}
	}
	return entries, nil
}

func (s *EntryStore) CountBySheet(ctx context.Context, sheetID string) (int, error) {
	var count int
	s.read(ctx, func(data *state) {
		count = len(data.entries[sheetID])
	})
	return count, nil
}

func (s *EntryStore) ListCertifiedCandidateEntries(ctx context.Context, electionID string) ([]models.ResultEntry, error) {
	entries := []models.ResultEntry{}
	s.read(ctx, func(data *state) {
		for sheetID, bySheet := range data.entries {
			sheet, ok := data.sheets[sheetID]
			if !ok || sheet.ElectionID != electionID || sheet.Status != models.SheetStatusCertified {
				continue
			}
			for _, entry := range bySheet {
				if entry.IsCandidate() {
					entries = append(entries, entry)
				}
			}
		}
	})
	return entries, nil
}

type ActivityStore struct {
	*Store
}

func (s *ActivityStore) Append(ctx context.Context, event models.ActivityEvent) error {
	return s.write(ctx, func(data *state) error {
		data.events = append(data.events, event)
		return nil
	})
}

func (s *ActivityStore) newestFirst(ctx context.Context, match func(models.ActivityEvent) bool, limit int) []models.ActivityEvent {
	events := []models.ActivityEvent{}
	s.read(ctx, func(data *state) {
		for i := len(data.events) - 1; i >= 0; i-- {
			if limit > 0 && len(events) == limit {
				break
			}
			if match(data.events[i]) {
				events = append(events, data.events[i])
			}
		}
	})
	return events
}

func (s *ActivityStore) ListByElection(ctx context.Context, electionID string, limit int) ([]models.ActivityEvent, error) {
	return s.newestFirst(ctx, func(event models.ActivityEvent) bool {
		return event.ElectionID == electionID
	}, limit), nil
}

func (s *ActivityStore) ListBySheet(ctx context.Context, sheetID string) ([]models.ActivityEvent, error) {
	return s.newestFirst(ctx, func(event models.ActivityEvent) bool {
		return event.SheetID == sheetID
	}, 0), nil
}

type ReferenceStore struct {
	*Store
}

func (s *ReferenceStore) GetStation(ctx context.Context, id string) (models.PollingStation, error) {
	var (
		station models.PollingStation
		exists  bool
	)
	s.read(ctx, func(data *state) {
		station, exists = data.stations[id]
	})
	if !exists {
		return models.PollingStation{}, repositories.NotFound("polling station %s does not exist", id)
	}
	return station, nil
}

func (s *ReferenceStore) ListStations(ctx context.Context, electionID string) ([]models.PollingStation, error) {
	stations := []models.PollingStation{}
	s.read(ctx, func(data *state) {
		for _, station := range data.stations {
			if station.ElectionID == electionID {
				stations = append(stations, station)
			}
		}
	})
	slices.SortFunc(stations, func(a, b models.PollingStation) int {
		return strings.Compare(a.ID, b.ID)
	})
	return stations, nil
}

func (s *ReferenceStore) ListGeoUnits(ctx context.Context) ([]models.GeoUnit, error) {
	var units []models.GeoUnit
	s.read(ctx, func(data *state) {
		units = slices.Collect(maps.Values(data.geoUnits))
	})
	return units, nil
}

func (s *ReferenceStore) ListCandidates(ctx context.Context, electionID string) ([]models.Candidate, error) {
	candidates := []models.Candidate{}
	s.read(ctx, func(data *state) {
		for _, candidate := range data.candidates {
			if candidate.ElectionID == electionID {
				candidates = append(candidates, candidate)
			}
		}
	})
	return candidates, nil
}

func (s *ReferenceStore) ListPollOptions(ctx context.Context, electionID string) ([]models.PollOption, error) {
	options := []models.PollOption{}
	s.read(ctx, func(data *state) {
		for _, option := range data.pollOptions {
			if option.ElectionID == electionID {
				options = append(options, option)
			}
		}
	})
	return options, nil
}

func (s *ReferenceStore) UpsertGeoUnits(ctx context.Context, units []models.GeoUnit) error {
	return s.write(ctx, func(data *state) error {
		for _, unit := range units {
			data.geoUnits[unit.ID] = unit
		}
		return nil
	})
}

func (s *ReferenceStore) UpsertStations(ctx context.Context, stations []models.PollingStation) error {
	return s.write(ctx, func(data *state) error {
		for _, station := range stations {
			data.stations[station.ID] = station
		}
		return nil
	})
}

func (s *ReferenceStore) UpsertCandidates(ctx context.Context, candidates []models.Candidate) error {
	return s.write(ctx, func(data *state) error {
		for _, candidate := range candidates {
			data.candidates[candidate.ID] = candidate
		}
		return nil
	})
}

func (s *ReferenceStore) UpsertPollOptions(ctx context.Context, options []models.PollOption) error {
	return s.write(ctx, func(data *state) error {
		for _, option := range options {
			data.pollOptions[option.ID] = option
		}
		return nil
	})
}
