package models

import "time"

// ActivityAction is the workflow action recorded by an activity event
type ActivityAction string

const (
	ActivityActionSubmitted ActivityAction = "submitted"
	ActivityActionVerified  ActivityAction = "verified"
	ActivityActionApproved  ActivityAction = "approved"
	ActivityActionCertified ActivityAction = "certified"
	ActivityActionRejected  ActivityAction = "rejected"
)

// ActivityEvent is an immutable record of one accepted state transition
type ActivityEvent struct {
	ID               string         `db:"id" json:"id"`
	SheetID          string         `db:"sheet_id" json:"sheet_id"`
	ElectionID       string         `db:"election_id" json:"election_id"`
	PollingStationID string         `db:"polling_station_id" json:"polling_station_id"`
	Action           ActivityAction `db:"action" json:"action"`
	FromStatus       SheetStatus    `db:"from_status" json:"from_status"`
	ToStatus         SheetStatus    `db:"to_status" json:"to_status"`
	Version          int            `db:"version" json:"version"`
	PerformedBy      string         `db:"performed_by" json:"performed_by"`
	PerformedAt      time.Time      `db:"performed_at" json:"performed_at"`
	Notes            *string        `db:"notes" json:"notes,omitempty"`
}

// TableName returns the database table name
func (ActivityEvent) TableName() string {
	return "activity_events"
}
