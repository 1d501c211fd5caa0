package models

import (
	"encoding/json"
	"time"
)

const (
	targetCandidatePrefix  = "candidate:"
	targetPollOptionPrefix = "poll_option:"
)

// ResultEntry is a single candidate's or poll option's vote count on a sheet
type ResultEntry struct {
	SheetID      string    `db:"sheet_id" json:"sheet_id"`
	TargetKey    string    `db:"target_key" json:"-"`
	PositionID   *string   `db:"position_id" json:"position_id,omitempty"`
	CandidateID  *string   `db:"candidate_id" json:"candidate_id,omitempty"`
	PollOptionID *string   `db:"poll_option_id" json:"poll_option_id,omitempty"`
	Votes        int       `db:"votes" json:"votes"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (ResultEntry) TableName() string {
	return "result_entries"
}

// IsCandidate reports whether the entry counts votes for a candidate
func (e ResultEntry) IsCandidate() bool {
	return e.CandidateID != nil
}

// EntryTargetKey returns the upsert key for a candidate or poll option target.
// Exactly one of the ids is expected to be set.
func EntryTargetKey(candidateID, pollOptionID *string) string {
	if candidateID != nil {
		return targetCandidatePrefix + *candidateID
	}
	if pollOptionID != nil {
		return targetPollOptionPrefix + *pollOptionID
	}
	return ""
}

// EntryInput is one entry of a bulk upsert as received from a data-entry client.
// Votes is kept raw so that strings, fractions and negatives are reported per entry
// instead of failing the whole request body.
type EntryInput struct {
	PositionID   *string         `json:"position_id,omitempty"`
	CandidateID  *string         `json:"candidate_id,omitempty"`
	PollOptionID *string         `json:"poll_option_id,omitempty"`
	Votes        json.RawMessage `json:"votes"`
}
