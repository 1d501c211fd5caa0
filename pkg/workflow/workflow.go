package workflow

import (
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"

	collationerrors "github.com/Ramsey-B/tally/pkg/errors"
	"github.com/Ramsey-B/tally/pkg/models"
)

// MinRejectionReasonLength is the minimum number of non-blank characters a rejection reason needs
const MinRejectionReasonLength = 10

type Action string

const (
	ActionSubmit  Action = "submit"
	ActionVerify  Action = "verify"
	ActionApprove Action = "approve"
	ActionCertify Action = "certify"
	ActionReject  Action = "reject"
)

// Actions lists every workflow action
var Actions = []Action{ActionSubmit, ActionVerify, ActionApprove, ActionCertify, ActionReject}

// ParseAction converts a path segment into an Action
func ParseAction(s string) (Action, bool) {
	action := Action(strings.ToLower(s))
	return action, ectolinq.Contains(Actions, action)
}

type step struct {
	from  models.SheetStatus
	to    models.SheetStatus
	event models.ActivityAction
}

var forward = map[Action]step{
	ActionSubmit:  {from: models.SheetStatusDraft, to: models.SheetStatusSubmitted, event: models.ActivityActionSubmitted},
	ActionVerify:  {from: models.SheetStatusSubmitted, to: models.SheetStatusVerified, event: models.ActivityActionVerified},
	ActionApprove: {from: models.SheetStatusVerified, to: models.SheetStatusApproved, event: models.ActivityActionApproved},
	ActionCertify: {from: models.SheetStatusApproved, to: models.SheetStatusCertified, event: models.ActivityActionCertified},
}

// Command is a request to move a sheet through the pipeline
type Command struct {
	Action Action
	// ExpectedVersion is the sheet version the caller last read
	ExpectedVersion int
	ActorID         string
	// Reason is required for reject and recorded as the event notes
	Reason string
	// EntryCount is the number of entries stored on the sheet, checked by submit
	EntryCount int
}

// AllowedActions returns the actions that are legal from status
func AllowedActions(status models.SheetStatus) []Action {
	allowed := []Action{}
	for _, action := range Actions {
		if action == ActionReject {
			if status.InReview() {
				allowed = append(allowed, action)
			}
			continue
		}
		if forward[action].from == status {
			allowed = append(allowed, action)
		}
	}
	return allowed
}

// EnsureEditable returns an error unless entries and totals of the sheet may be changed
func EnsureEditable(sheet models.ResultSheet) error {
	switch sheet.Status {
	case models.SheetStatusDraft:
		return nil
	case models.SheetStatusCertified:
		return collationerrors.New(collationerrors.KindSheetLocked, "certified sheets cannot be modified").
			WithSheet(sheet.ID).
			WithState(string(sheet.Status), sheet.Version)
	default:
		return collationerrors.Newf(collationerrors.KindSheetNotEditable, "sheet is %s, only draft sheets can be edited", sheet.Status).
			WithSheet(sheet.ID).
			WithState(string(sheet.Status), sheet.Version)
	}
}

// EnsureVersion returns StaleState when the caller's version differs from the stored one
func EnsureVersion(sheet models.ResultSheet, expected int) error {
	if sheet.Version == expected {
		return nil
	}
	return staleState(sheet, expected)
}

func staleState(sheet models.ResultSheet, expected int) *collationerrors.CollationError {
	return collationerrors.Newf(collationerrors.KindStaleState, "sheet is at version %d, request was made against version %d", sheet.Version, expected).
		WithSheet(sheet.ID).
		WithState(string(sheet.Status), sheet.Version)
}

// Apply validates cmd against sheet and returns the next sheet state together with the
// activity event that records it. sheet is not modified.
func Apply(sheet models.ResultSheet, cmd Command, now time.Time) (models.ResultSheet, models.ActivityEvent, error) {
	if sheet.Version != cmd.ExpectedVersion {
		return sheet, models.ActivityEvent{}, staleState(sheet, cmd.ExpectedVersion).WithAction(string(cmd.Action))
	}

	if sheet.Status == models.SheetStatusCertified {
		return sheet, models.ActivityEvent{}, collationerrors.New(collationerrors.KindSheetLocked, "certified sheets are final").
			WithSheet(sheet.ID).
			WithState(string(sheet.Status), sheet.Version).
			WithAction(string(cmd.Action))
	}

	next := sheet
	next.Version = sheet.Version + 1
	next.UpdatedAt = now

	event := models.ActivityEvent{
		ID:               uuid.NewString(),
		SheetID:          sheet.ID,
		ElectionID:       sheet.ElectionID,
		PollingStationID: sheet.PollingStationID,
		FromStatus:       sheet.Status,
		Version:          next.Version,
		PerformedBy:      cmd.ActorID,
		PerformedAt:      now,
	}

	if cmd.Action == ActionReject {
		if !sheet.Status.InReview() {
			return sheet, models.ActivityEvent{}, invalidTransition(sheet, cmd.Action)
		}
		reason := strings.TrimSpace(cmd.Reason)
		if len([]rune(reason)) < MinRejectionReasonLength {
			return sheet, models.ActivityEvent{}, collationerrors.Newf(collationerrors.KindMissingRejectionReason, "a rejection reason of at least %d characters is required", MinRejectionReasonLength).
				WithSheet(sheet.ID).
				WithState(string(sheet.Status), sheet.Version).
				WithAction(string(cmd.Action))
		}

		switch sheet.Status {
		case models.SheetStatusSubmitted:
			next.SubmittedAt = nil
		case models.SheetStatusVerified:
			next.VerifiedAt = nil
		case models.SheetStatusApproved:
			next.ApprovedAt = nil
		}
		next.Status = models.SheetStatusDraft
		next.RejectionReason = &reason

		event.Action = models.ActivityActionRejected
		event.ToStatus = next.Status
		event.Notes = &reason
		return next, event, nil
	}

	st, ok := forward[cmd.Action]
	if !ok || st.from != sheet.Status {
		return sheet, models.ActivityEvent{}, invalidTransition(sheet, cmd.Action)
	}

	stamp := now
	switch cmd.Action {
	case ActionSubmit:
		if cmd.EntryCount < 1 {
			return sheet, models.ActivityEvent{}, collationerrors.New(collationerrors.KindInvalidTransition, "cannot submit a sheet without entries").
				WithSheet(sheet.ID).
				WithState(string(sheet.Status), sheet.Version).
				WithAction(string(cmd.Action)).
				WithPrecondition("at least one entry")
		}
		next.SubmittedAt = &stamp
		next.RejectionReason = nil
	case ActionVerify:
		next.VerifiedAt = &stamp
	case ActionApprove:
		next.ApprovedAt = &stamp
	case ActionCertify:
		next.CertifiedAt = &stamp
	}
	next.Status = st.to

	event.Action = st.event
	event.ToStatus = next.Status
	return next, event, nil
}

func invalidTransition(sheet models.ResultSheet, action Action) error {
	return collationerrors.Newf(collationerrors.KindInvalidTransition, "cannot %s a sheet that is %s", action, sheet.Status).
		WithSheet(sheet.ID).
		WithState(string(sheet.Status), sheet.Version).
		WithAction(string(action))
}
