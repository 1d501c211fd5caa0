package models

// GeoLevel identifies a layer of the electoral geography
type GeoLevel string

const (
	GeoLevelRegion         GeoLevel = "region"
	GeoLevelConstituency   GeoLevel = "constituency"
	GeoLevelElectoralArea  GeoLevel = "electoral_area"
	GeoLevelPollingStation GeoLevel = "polling_station"
)

// IsValid reports whether l is a known level
func (l GeoLevel) IsValid() bool {
	switch l {
	case GeoLevelRegion, GeoLevelConstituency, GeoLevelElectoralArea, GeoLevelPollingStation:
		return true
	}
	return false
}

// PollingStation is the leaf geographic unit. Reference data, never mutated by collation.
type PollingStation struct {
	ID              string `db:"id" json:"id" yaml:"id"`
	ElectionID      string `db:"election_id" json:"election_id" yaml:"election_id"`
	Name            string `db:"name" json:"name" yaml:"name"`
	Code            string `db:"code" json:"code" yaml:"code"`
	ElectoralAreaID string `db:"electoral_area_id" json:"electoral_area_id" yaml:"electoral_area_id"`
	ConstituencyID  string `db:"constituency_id" json:"constituency_id" yaml:"constituency_id"`
	RegionID        string `db:"region_id" json:"region_id" yaml:"region_id"`
}

// TableName returns the database table name
func (PollingStation) TableName() string {
	return "polling_stations"
}

// NodeID returns the id of the geographic node the station belongs to at the given level
func (p PollingStation) NodeID(level GeoLevel) string {
	switch level {
	case GeoLevelRegion:
		return p.RegionID
	case GeoLevelConstituency:
		return p.ConstituencyID
	case GeoLevelElectoralArea:
		return p.ElectoralAreaID
	default:
		return p.ID
	}
}

// GeoUnit labels a region, constituency or electoral area
type GeoUnit struct {
	ID       string   `db:"id" json:"id" yaml:"id"`
	Level    GeoLevel `db:"level" json:"level" yaml:"level"`
	Name     string   `db:"name" json:"name" yaml:"name"`
	ParentID *string  `db:"parent_id" json:"parent_id,omitempty" yaml:"parent_id"`
}

// TableName returns the database table name
func (GeoUnit) TableName() string {
	return "geo_units"
}

// Candidate is a contestant for a position
type Candidate struct {
	ID         string  `db:"id" json:"id" yaml:"id"`
	ElectionID string  `db:"election_id" json:"election_id" yaml:"election_id"`
	PositionID string  `db:"position_id" json:"position_id" yaml:"position_id"`
	Name       string  `db:"name" json:"name" yaml:"name"`
	Party      *string `db:"party" json:"party,omitempty" yaml:"party"`
}

// TableName returns the database table name
func (Candidate) TableName() string {
	return "candidates"
}

// PollOption is a choice on a referendum style question
type PollOption struct {
	ID         string `db:"id" json:"id" yaml:"id"`
	ElectionID string `db:"election_id" json:"election_id" yaml:"election_id"`
	Label      string `db:"label" json:"label" yaml:"label"`
}

// TableName returns the database table name
func (PollOption) TableName() string {
	return "poll_options"
}
