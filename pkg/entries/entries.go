package entries

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"

	collationerrors "github.com/Ramsey-B/tally/pkg/errors"
	"github.com/Ramsey-B/tally/pkg/models"
)

// MaxVotes bounds a single entry. Anything larger is a data-entry mistake.
const MaxVotes = math.MaxInt32

// ParseVoteCount decodes a raw JSON vote value. Only non-negative integers are accepted;
// a whole number written with a fraction part (12.0) is accepted as that integer.
func ParseVoteCount(raw json.RawMessage) (int, error) {
	value := strings.TrimSpace(string(raw))
	if value == "" || value == "null" {
		return 0, collationerrors.New(collationerrors.KindInvalidVoteCount, "votes is required")
	}
	if strings.HasPrefix(value, `"`) {
		return 0, collationerrors.Newf(collationerrors.KindInvalidVoteCount, "votes must be a number, got %s", value)
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return checkRange(float64(n), value)
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, collationerrors.Newf(collationerrors.KindInvalidVoteCount, "votes must be a number, got %s", value)
	}
	if f != math.Trunc(f) {
		return 0, collationerrors.Newf(collationerrors.KindInvalidVoteCount, "votes must be a whole number, got %s", value)
	}
	return checkRange(f, value)
}

func checkRange(f float64, raw string) (int, error) {
	if f < 0 {
		return 0, collationerrors.Newf(collationerrors.KindInvalidVoteCount, "votes cannot be negative, got %s", raw)
	}
	if f > MaxVotes {
		return 0, collationerrors.Newf(collationerrors.KindInvalidVoteCount, "votes exceed the maximum of %d, got %s", MaxVotes, raw)
	}
	return int(f), nil
}

func present(id *string) bool {
	return id != nil && !ectolinq.IsEmpty(strings.TrimSpace(*id))
}

// ValidateBatch turns a batch of inputs into entries for sheetID. The first invalid
// entry fails the whole batch. Inputs addressing the same target collapse to the last one,
// keeping the position of the first occurrence.
func ValidateBatch(sheetID string, inputs []models.EntryInput, now time.Time) ([]models.ResultEntry, error) {
	if len(inputs) == 0 {
		return nil, collationerrors.New(collationerrors.KindInvalidEntry, "at least one entry is required").WithSheet(sheetID)
	}

	result := make([]models.ResultEntry, 0, len(inputs))
	seen := make(map[string]int, len(inputs))

	for i, input := range inputs {
		hasCandidate := present(input.CandidateID)
		hasOption := present(input.PollOptionID)
		if hasCandidate == hasOption {
			return nil, collationerrors.New(collationerrors.KindInvalidEntry, "exactly one of candidate_id or poll_option_id must be set").
				WithSheet(sheetID).
				WithEntryIndex(i)
		}

		votes, err := ParseVoteCount(input.Votes)
		if err != nil {
			ce, _ := collationerrors.AsCollationError(err)
			return nil, ce.WithSheet(sheetID).WithEntryIndex(i)
		}

		entry := models.ResultEntry{
			SheetID:   sheetID,
			Votes:     votes,
			UpdatedAt: now,
		}
		if hasCandidate {
			id := strings.TrimSpace(*input.CandidateID)
			entry.CandidateID = &id
		} else {
			id := strings.TrimSpace(*input.PollOptionID)
			entry.PollOptionID = &id
		}
		if present(input.PositionID) {
			id := strings.TrimSpace(*input.PositionID)
			entry.PositionID = &id
		}
		entry.TargetKey = models.EntryTargetKey(entry.CandidateID, entry.PollOptionID)

		if idx, ok := seen[entry.TargetKey]; ok {
			result[idx] = entry
			continue
		}
		seen[entry.TargetKey] = len(result)
		result = append(result, entry)
	}

	return result, nil
}

// Candidates keeps only candidate entries
func Candidates(list []models.ResultEntry) []models.ResultEntry {
	return ectolinq.Filter(list, func(entry models.ResultEntry) bool {
		return entry.IsCandidate()
	})
}
