package workflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collationerrors "github.com/Ramsey-B/tally/pkg/errors"
	"github.com/Ramsey-B/tally/pkg/models"
	"github.com/Ramsey-B/tally/pkg/workflow"
)

var now = time.Date(2024, 12, 7, 18, 30, 0, 0, time.UTC)

func newSheet(status models.SheetStatus) models.ResultSheet {
	return models.ResultSheet{
		ID:               "sheet-1",
		ElectionID:       "election-1",
		PollingStationID: "station-1",
		Status:           status,
		Version:          1,
	}
}

func command(action workflow.Action, version int) workflow.Command {
	return workflow.Command{
		Action:          action,
		ExpectedVersion: version,
		ActorID:         "officer-1",
		Reason:          "figures do not match the pink sheet",
		EntryCount:      3,
	}
}

func TestApply_HappyPath(t *testing.T) {
	sheet := newSheet(models.SheetStatusDraft)

	steps := []struct {
		action workflow.Action
		status models.SheetStatus
		event  models.ActivityAction
	}{
		{workflow.ActionSubmit, models.SheetStatusSubmitted, models.ActivityActionSubmitted},
		{workflow.ActionVerify, models.SheetStatusVerified, models.ActivityActionVerified},
		{workflow.ActionApprove, models.SheetStatusApproved, models.ActivityActionApproved},
		{workflow.ActionCertify, models.SheetStatusCertified, models.ActivityActionCertified},
	}

	for i, step := range steps {
		next, event, err := workflow.Apply(sheet, command(step.action, sheet.Version), now)
		require.NoError(t, err, "step %d", i)

		assert.Equal(t, step.status, next.Status)
		assert.Equal(t, sheet.Version+1, next.Version)
		assert.Equal(t, step.event, event.Action)
		assert.Equal(t, sheet.Status, event.FromStatus)
		assert.Equal(t, step.status, event.ToStatus)
		assert.Equal(t, next.Version, event.Version)
		assert.Equal(t, "officer-1", event.PerformedBy)
		assert.NotEmpty(t, event.ID)
		sheet = next
	}

	require.NotNil(t, sheet.SubmittedAt)
	require.NotNil(t, sheet.VerifiedAt)
	require.NotNil(t, sheet.ApprovedAt)
	require.NotNil(t, sheet.CertifiedAt)
	assert.Equal(t, 5, sheet.Version)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	sheet := newSheet(models.SheetStatusDraft)

	_, _, err := workflow.Apply(sheet, command(workflow.ActionSubmit, 1), now)
	require.NoError(t, err)

	assert.Equal(t, models.SheetStatusDraft, sheet.Status)
	assert.Equal(t, 1, sheet.Version)
	assert.Nil(t, sheet.SubmittedAt)
}

// Every sequence of up to six actions is explored; certified must only ever be reached
// through submitted, verified and approved in that order since the last return to draft.
func TestApply_NoStageIsSkipped(t *testing.T) {
	type path struct {
		sheet   models.ResultSheet
		visited []models.SheetStatus
	}

	frontier := []path{{sheet: newSheet(models.SheetStatusDraft), visited: []models.SheetStatus{models.SheetStatusDraft}}}
	for depth := 0; depth < 6; depth++ {
		var nextFrontier []path
		for _, p := range frontier {
			for _, action := range workflow.Actions {
				next, _, err := workflow.Apply(p.sheet, command(action, p.sheet.Version), now)
				if err != nil {
					continue
				}
				visited := append(append([]models.SheetStatus{}, p.visited...), next.Status)
				if next.Status == models.SheetStatusCertified {
					n := len(visited)
					require.GreaterOrEqual(t, n, 5)
					assert.Equal(t, []models.SheetStatus{
						models.SheetStatusDraft,
						models.SheetStatusSubmitted,
						models.SheetStatusVerified,
						models.SheetStatusApproved,
						models.SheetStatusCertified,
					}, visited[n-5:])
				}
				nextFrontier = append(nextFrontier, path{sheet: next, visited: visited})
			}
		}
		frontier = nextFrontier
	}
}

func TestApply_RejectReturnsToDraft(t *testing.T) {
	for _, status := range []models.SheetStatus{models.SheetStatusSubmitted, models.SheetStatusVerified, models.SheetStatusApproved} {
		t.Run(string(status), func(t *testing.T) {
			sheet := newSheet(status)
			stamp := now.Add(-time.Hour)
			sheet.SubmittedAt = &stamp
			if status != models.SheetStatusSubmitted {
				sheet.VerifiedAt = &stamp
			}
			if status == models.SheetStatusApproved {
				sheet.ApprovedAt = &stamp
			}

			next, event, err := workflow.Apply(sheet, command(workflow.ActionReject, 1), now)
			require.NoError(t, err)

			assert.Equal(t, models.SheetStatusDraft, next.Status)
			assert.Equal(t, 2, next.Version)
			require.NotNil(t, next.RejectionReason)
			assert.Equal(t, "figures do not match the pink sheet", *next.RejectionReason)
			assert.True(t, next.WasReturned())

			assert.Equal(t, models.ActivityActionRejected, event.Action)
			assert.Equal(t, status, event.FromStatus)
			assert.Equal(t, models.SheetStatusDraft, event.ToStatus)
			require.NotNil(t, event.Notes)
			assert.Equal(t, *next.RejectionReason, *event.Notes)

			switch status {
			case models.SheetStatusSubmitted:
				assert.Nil(t, next.SubmittedAt)
			case models.SheetStatusVerified:
				assert.NotNil(t, next.SubmittedAt)
				assert.Nil(t, next.VerifiedAt)
			case models.SheetStatusApproved:
				assert.NotNil(t, next.VerifiedAt)
				assert.Nil(t, next.ApprovedAt)
			}
		})
	}
}

func TestApply_ResubmitClearsRejectionReason(t *testing.T) {
	sheet := newSheet(models.SheetStatusSubmitted)

	rejected, _, err := workflow.Apply(sheet, command(workflow.ActionReject, 1), now)
	require.NoError(t, err)

	resubmitted, _, err := workflow.Apply(rejected, command(workflow.ActionSubmit, rejected.Version), now)
	require.NoError(t, err)

	assert.Equal(t, models.SheetStatusSubmitted, resubmitted.Status)
	assert.Nil(t, resubmitted.RejectionReason)
}

func TestApply_RejectRequiresReason(t *testing.T) {
	reasons := []string{"", "   ", "too short", "         short         "}
	for _, reason := range reasons {
		cmd := command(workflow.ActionReject, 1)
		cmd.Reason = reason

		_, _, err := workflow.Apply(newSheet(models.SheetStatusVerified), cmd, now)
		assert.True(t, collationerrors.IsKind(err, collationerrors.KindMissingRejectionReason), "reason %q", reason)
	}
}

func TestApply_InvalidTransitions(t *testing.T) {
	tests := []struct {
		status models.SheetStatus
		action workflow.Action
	}{
		{models.SheetStatusDraft, workflow.ActionVerify},
		{models.SheetStatusDraft, workflow.ActionApprove},
		{models.SheetStatusDraft, workflow.ActionCertify},
		{models.SheetStatusDraft, workflow.ActionReject},
		{models.SheetStatusSubmitted, workflow.ActionSubmit},
		{models.SheetStatusSubmitted, workflow.ActionApprove},
		{models.SheetStatusSubmitted, workflow.ActionCertify},
		{models.SheetStatusVerified, workflow.ActionCertify},
		{models.SheetStatusApproved, workflow.ActionVerify},
	}

	for _, tt := range tests {
		t.Run(string(tt.status)+"_"+string(tt.action), func(t *testing.T) {
			_, _, err := workflow.Apply(newSheet(tt.status), command(tt.action, 1), now)
			require.Error(t, err)

			ce, ok := collationerrors.AsCollationError(err)
			require.True(t, ok)
			assert.Equal(t, collationerrors.KindInvalidTransition, ce.Kind)
			assert.Equal(t, string(tt.status), ce.CurrentStatus)
			assert.Equal(t, string(tt.action), ce.Action)
		})
	}
}

func TestApply_CertifiedIsLocked(t *testing.T) {
	for _, action := range workflow.Actions {
		_, _, err := workflow.Apply(newSheet(models.SheetStatusCertified), command(action, 1), now)
		assert.True(t, collationerrors.IsKind(err, collationerrors.KindSheetLocked), "action %s", action)
	}
}

func TestApply_StaleVersionAlwaysFails(t *testing.T) {
	for _, status := range models.SheetStatuses {
		for _, action := range workflow.Actions {
			for _, version := range []int{0, 2, 7} {
				_, _, err := workflow.Apply(newSheet(status), command(action, version), now)
				assert.True(t, collationerrors.IsKind(err, collationerrors.KindStaleState), "%s %s v%d", status, action, version)
			}
		}
	}
}

func TestApply_SubmitRequiresEntries(t *testing.T) {
	cmd := command(workflow.ActionSubmit, 1)
	cmd.EntryCount = 0

	_, _, err := workflow.Apply(newSheet(models.SheetStatusDraft), cmd, now)

	ce, ok := collationerrors.AsCollationError(err)
	require.True(t, ok)
	assert.Equal(t, collationerrors.KindInvalidTransition, ce.Kind)
	assert.Equal(t, "at least one entry", ce.Precondition)
}

func TestAllowedActions_AgreeWithApply(t *testing.T) {
	for _, status := range models.SheetStatuses {
		allowed := workflow.AllowedActions(status)
		for _, action := range workflow.Actions {
			_, _, err := workflow.Apply(newSheet(status), command(action, 1), now)
			assert.Equal(t, err == nil, contains(allowed, action), "%s %s", status, action)
		}
	}
	assert.Empty(t, workflow.AllowedActions(models.SheetStatusCertified))
}

func TestEnsureEditable(t *testing.T) {
	assert.NoError(t, workflow.EnsureEditable(newSheet(models.SheetStatusDraft)))
	assert.True(t, collationerrors.IsKind(workflow.EnsureEditable(newSheet(models.SheetStatusCertified)), collationerrors.KindSheetLocked))
	for _, status := range []models.SheetStatus{models.SheetStatusSubmitted, models.SheetStatusVerified, models.SheetStatusApproved} {
		assert.True(t, collationerrors.IsKind(workflow.EnsureEditable(newSheet(status)), collationerrors.KindSheetNotEditable))
	}
}

func TestParseAction(t *testing.T) {
	action, ok := workflow.ParseAction("Certify")
	assert.True(t, ok)
	assert.Equal(t, workflow.ActionCertify, action)

	_, ok = workflow.ParseAction("publish")
	assert.False(t, ok)
}

func contains(actions []workflow.Action, action workflow.Action) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
