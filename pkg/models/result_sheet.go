package models

import (
	"time"
)

// SheetStatus is the workflow status of a result sheet
type SheetStatus string

const (
	SheetStatusDraft     SheetStatus = "draft"
	SheetStatusSubmitted SheetStatus = "submitted"
	SheetStatusVerified  SheetStatus = "verified"
	SheetStatusApproved  SheetStatus = "approved"
	SheetStatusCertified SheetStatus = "certified"
)

// SheetStatuses lists every status in pipeline order
var SheetStatuses = []SheetStatus{
	SheetStatusDraft,
	SheetStatusSubmitted,
	SheetStatusVerified,
	SheetStatusApproved,
	SheetStatusCertified,
}

// IsValid reports whether s is a known status
func (s SheetStatus) IsValid() bool {
	for _, status := range SheetStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// InReview reports whether the sheet has been submitted but not yet certified
func (s SheetStatus) InReview() bool {
	return s == SheetStatusSubmitted || s == SheetStatusVerified || s == SheetStatusApproved
}

// Totals are the aggregate figures written on the physical tally sheet
type Totals struct {
	TotalRegisteredVoters *int `db:"total_registered_voters" json:"total_registered_voters"`
	TotalVotesCast        *int `db:"total_votes_cast" json:"total_votes_cast"`
	TotalValidVotes       *int `db:"total_valid_votes" json:"total_valid_votes"`
	TotalRejectedVotes    *int `db:"total_rejected_votes" json:"total_rejected_votes"`
}

// ResultSheet is the vote tally record for one polling station in one election
type ResultSheet struct {
	ID               string      `db:"id" json:"id"`
	ElectionID       string      `db:"election_id" json:"election_id"`
	PollingStationID string      `db:"polling_station_id" json:"polling_station_id"`
	Status           SheetStatus `db:"status" json:"status"`
	Totals
	Version         int        `db:"version" json:"version"`
	CreatedBy       string     `db:"created_by" json:"created_by"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	SubmittedAt     *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	VerifiedAt      *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	CertifiedAt     *time.Time `db:"certified_at" json:"certified_at,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
}

// TableName returns the database table name
func (ResultSheet) TableName() string {
	return "result_sheets"
}

// ValidVotes returns total_valid_votes or zero when it was never reported
func (s ResultSheet) ValidVotes() int {
	if s.TotalValidVotes == nil {
		return 0
	}
	return *s.TotalValidVotes
}

// WasReturned reports whether a draft sheet carries a rejection from review
func (s ResultSheet) WasReturned() bool {
	return s.Status == SheetStatusDraft && s.RejectionReason != nil
}

// SheetFilter narrows sheet listings
type SheetFilter struct {
	ElectionID string
	Status     SheetStatus
}
