// Package seed loads election reference data (geography, stations and ballot) from YAML.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/tally/pkg/models"
)

// Reference is the document layout of a reference file
type Reference struct {
	GeoUnits        []models.GeoUnit        `yaml:"geo_units"`
	PollingStations []models.PollingStation `yaml:"polling_stations"`
	Candidates      []models.Candidate      `yaml:"candidates"`
	PollOptions     []models.PollOption     `yaml:"poll_options"`
}

// Writer stores reference rows
type Writer interface {
	UpsertGeoUnits(ctx context.Context, units []models.GeoUnit) error
	UpsertStations(ctx context.Context, stations []models.PollingStation) error
	UpsertCandidates(ctx context.Context, candidates []models.Candidate) error
	UpsertPollOptions(ctx context.Context, options []models.PollOption) error
}

// Transactor runs fn inside one transaction
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LoadFile reads and validates a reference file
func LoadFile(path string) (Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Reference{}, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a reference document, rejecting unknown keys
func Parse(data []byte) (Reference, error) {
	var ref Reference
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&ref); err != nil {
		return Reference{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return ref, ref.Validate()
}

func (r Reference) Validate() error {
	var errs []error

	units := make(map[string]models.GeoLevel, len(r.GeoUnits))
	for i, unit := range r.GeoUnits {
		if unit.ID == "" {
			errs = append(errs, fmt.Errorf("geo_units[%d]: id is required", i))
			continue
		}
		if !unit.Level.IsValid() {
			errs = append(errs, fmt.Errorf("geo_units[%d]: unknown level %q", i, unit.Level))
		}
		if _, dup := units[unit.ID]; dup {
			errs = append(errs, fmt.Errorf("geo_units[%d]: duplicate id %q", i, unit.ID))
		}
		units[unit.ID] = unit.Level
	}

	checkUnit := func(i int, id string, level models.GeoLevel) {
		if id == "" {
			errs = append(errs, fmt.Errorf("polling_stations[%d]: %s_id is required", i, level))
			return
		}
		if got, known := units[id]; known && got != level {
			errs = append(errs, fmt.Errorf("polling_stations[%d]: %q is a %s, not a %s", i, id, got, level))
		}
	}

	stations := make(map[string]struct{}, len(r.PollingStations))
	for i, station := range r.PollingStations {
		if station.ID == "" || station.ElectionID == "" {
			errs = append(errs, fmt.Errorf("polling_stations[%d]: id and election_id are required", i))
			continue
		}
		if _, dup := stations[station.ID]; dup {
			errs = append(errs, fmt.Errorf("polling_stations[%d]: duplicate id %q", i, station.ID))
		}
		stations[station.ID] = struct{}{}
		checkUnit(i, station.RegionID, models.GeoLevelRegion)
		checkUnit(i, station.ConstituencyID, models.GeoLevelConstituency)
		checkUnit(i, station.ElectoralAreaID, models.GeoLevelElectoralArea)
	}

	for i, candidate := range r.Candidates {
		if candidate.ID == "" || candidate.ElectionID == "" || candidate.PositionID == "" {
			errs = append(errs, fmt.Errorf("candidates[%d]: id, election_id and position_id are required", i))
		}
	}

	for i, option := range r.PollOptions {
		if option.ID == "" || option.ElectionID == "" {
			errs = append(errs, fmt.Errorf("poll_options[%d]: id and election_id are required", i))
		}
	}

	return errors.Join(errs...)
}

// Apply writes the reference data in one transaction
func Apply(ctx context.Context, tx Transactor, w Writer, ref Reference) error {
	return tx.WithTx(ctx, func(ctx context.Context) error {
		if err := w.UpsertGeoUnits(ctx, ref.GeoUnits); err != nil {
			return err
		}
		if err := w.UpsertStations(ctx, ref.PollingStations); err != nil {
			return err
		}
		if err := w.UpsertCandidates(ctx, ref.Candidates); err != nil {
			return err
		}
		return w.UpsertPollOptions(ctx, ref.PollOptions)
	})
}
