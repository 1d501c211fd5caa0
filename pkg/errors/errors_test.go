package errors_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/tally/pkg/errors"
)

func TestCollationError_StatusCodes(t *testing.T) {
	tests := []struct {
		kind errors.Kind
		code int
	}{
		{errors.KindInvalidTransition, http.StatusConflict},
		{errors.KindStaleState, http.StatusConflict},
		{errors.KindSheetNotEditable, http.StatusConflict},
		{errors.KindSheetLocked, http.StatusLocked},
		{errors.KindInvalidVoteCount, http.StatusUnprocessableEntity},
		{errors.KindInvalidEntry, http.StatusUnprocessableEntity},
		{errors.KindMissingRejectionReason, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.code, errors.New(tt.kind, "x").StatusCode())
		})
	}
}

func TestCollationError_ToHTTPErrorCarriesMeta(t *testing.T) {
	err := errors.New(errors.KindStaleState, "sheet was modified by another request").
		WithSheet("sheet-1").
		WithState("verified", 4).
		WithAction("approve")

	httpErr := err.ToHTTPError()

	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(httpErr))
	assert.Equal(t, "StaleState", httpErr.Meta["kind"])
	assert.Equal(t, "sheet-1", httpErr.Meta["sheet_id"])
	assert.Equal(t, "verified", httpErr.Meta["current_status"])
	assert.Equal(t, 4, httpErr.Meta["current_version"])
	assert.Equal(t, "approve", httpErr.Meta["action"])
}

func TestCollationError_Message(t *testing.T) {
	err := errors.New(errors.KindInvalidVoteCount, "votes must be a non-negative integer").WithEntryIndex(2)
	assert.Equal(t, "InvalidVoteCount: entry 2: votes must be a non-negative integer", err.Error())
}

func TestIsKind_UnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("bulk add: %w", errors.New(errors.KindSheetLocked, "certified"))

	assert.True(t, errors.IsKind(wrapped, errors.KindSheetLocked))
	assert.False(t, errors.IsKind(wrapped, errors.KindStaleState))

	ce, ok := errors.AsCollationError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "certified", ce.Message)
}
