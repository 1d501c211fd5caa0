package consistency

import (
	"fmt"

	"github.com/Ramsey-B/tally/pkg/models"
)

const (
	WarningValidPlusRejected = "valid_plus_rejected_mismatch"
	WarningTurnoutExceeded   = "votes_cast_exceed_registered"
)

// Warning is an advisory finding about the arithmetic written on the sheet
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Report compares the entries of a sheet with its reported totals. It never blocks a transition.
type Report struct {
	// CalculatedTotal is the sum of candidate votes
	CalculatedTotal int `json:"calculated_total"`
	// PollOptionTotal is the sum of poll option votes, kept apart from candidate votes
	PollOptionTotal int            `json:"poll_option_total"`
	PositionTotals  map[string]int `json:"position_totals"`
	TotalValidVotes *int           `json:"total_valid_votes"`
	Discrepancy     bool           `json:"discrepancy"`
	// Delta is CalculatedTotal minus TotalValidVotes when Discrepancy is set
	Delta    int       `json:"delta"`
	Warnings []Warning `json:"warnings"`
}

// Check computes the report for the given totals and entries
func Check(totals models.Totals, list []models.ResultEntry) Report {
	report := Report{
		PositionTotals:  map[string]int{},
		TotalValidVotes: totals.TotalValidVotes,
		Warnings:        []Warning{},
	}

	for _, entry := range list {
		if !entry.IsCandidate() {
			report.PollOptionTotal += entry.Votes
			continue
		}
		report.CalculatedTotal += entry.Votes
		if entry.PositionID != nil {
			report.PositionTotals[*entry.PositionID] += entry.Votes
		}
	}

	if totals.TotalValidVotes != nil && *totals.TotalValidVotes != report.CalculatedTotal {
		report.Discrepancy = true
		report.Delta = report.CalculatedTotal - *totals.TotalValidVotes
	}

	if totals.TotalValidVotes != nil && totals.TotalRejectedVotes != nil && totals.TotalVotesCast != nil {
		sum := *totals.TotalValidVotes + *totals.TotalRejectedVotes
		if sum != *totals.TotalVotesCast {
			report.Warnings = append(report.Warnings, Warning{
				Code:    WarningValidPlusRejected,
				Message: fmt.Sprintf("valid (%d) plus rejected (%d) votes is %d but %d votes were cast", *totals.TotalValidVotes, *totals.TotalRejectedVotes, sum, *totals.TotalVotesCast),
			})
		}
	}

	if totals.TotalVotesCast != nil && totals.TotalRegisteredVoters != nil && *totals.TotalVotesCast > *totals.TotalRegisteredVoters {
		report.Warnings = append(report.Warnings, Warning{
			Code:    WarningTurnoutExceeded,
			Message: fmt.Sprintf("%d votes were cast but only %d voters are registered", *totals.TotalVotesCast, *totals.TotalRegisteredVoters),
		})
	}

	return report
}
