package errors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	pkgerrors "github.com/pkg/errors"
)

// Kind classifies collation failures so clients can react without parsing messages
type Kind string

const (
	KindInvalidTransition      Kind = "InvalidTransition"
	KindStaleState             Kind = "StaleState"
	KindSheetNotEditable       Kind = "SheetNotEditable"
	KindSheetLocked            Kind = "SheetLocked"
	KindInvalidVoteCount       Kind = "InvalidVoteCount"
	KindInvalidEntry           Kind = "InvalidEntry"
	KindMissingRejectionReason Kind = "MissingRejectionReason"
)

var kindStatus = map[Kind]int{
	KindInvalidTransition:      http.StatusConflict,
	KindStaleState:             http.StatusConflict,
	KindSheetNotEditable:       http.StatusConflict,
	KindSheetLocked:            http.StatusLocked,
	KindInvalidVoteCount:       http.StatusUnprocessableEntity,
	KindInvalidEntry:           http.StatusUnprocessableEntity,
	KindMissingRejectionReason: http.StatusUnprocessableEntity,
}

// CollationError is a typed failure of a sheet operation. Every field other than Kind and
// Message is optional context that is surfaced to clients as error metadata.
type CollationError struct {
	Kind           Kind
	Message        string
	SheetID        string
	CurrentStatus  string
	CurrentVersion *int
	Action         string
	Precondition   string
	EntryIndex     *int
}

func New(kind Kind, msg string) *CollationError {
	return &CollationError{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *CollationError {
	return &CollationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *CollationError) Error() string {
	parts := []string{}
	if e.SheetID != "" {
		parts = append(parts, fmt.Sprintf("sheet '%s'", e.SheetID))
	}
	if e.Action != "" {
		parts = append(parts, fmt.Sprintf("action '%s'", e.Action))
	}
	if e.EntryIndex != nil {
		parts = append(parts, fmt.Sprintf("entry %d", *e.EntryIndex))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, strings.Join(parts, " -> "), e.Message)
}

func (e *CollationError) WithSheet(sheetID string) *CollationError {
	e.SheetID = sheetID
	return e
}

func (e *CollationError) WithState(status string, version int) *CollationError {
	e.CurrentStatus = status
	e.CurrentVersion = &version
	return e
}

func (e *CollationError) WithAction(action string) *CollationError {
	e.Action = action
	return e
}

func (e *CollationError) WithPrecondition(precondition string) *CollationError {
	e.Precondition = precondition
	return e
}

func (e *CollationError) WithEntryIndex(index int) *CollationError {
	e.EntryIndex = &index
	return e
}

// StatusCode maps the kind onto an HTTP status
func (e *CollationError) StatusCode() int {
	if code, ok := kindStatus[e.Kind]; ok {
		return code
	}
	return http.StatusBadRequest
}

func (e *CollationError) ToHTTPError() *httperror.HTTPError {
	httpErr := httperror.NewHTTPError(e.StatusCode(), e.Message).AddMetaValue("kind", string(e.Kind))
	if e.SheetID != "" {
		httpErr = httpErr.AddMetaValue("sheet_id", e.SheetID)
	}
	if e.CurrentStatus != "" {
		httpErr = httpErr.AddMetaValue("current_status", e.CurrentStatus)
	}
	if e.CurrentVersion != nil {
		httpErr = httpErr.AddMetaValue("current_version", *e.CurrentVersion)
	}
	if e.Action != "" {
		httpErr = httpErr.AddMetaValue("action", e.Action)
	}
	if e.Precondition != "" {
		httpErr = httpErr.AddMetaValue("precondition", e.Precondition)
	}
	if e.EntryIndex != nil {
		httpErr = httpErr.AddMetaValue("entry_index", *e.EntryIndex)
	}
	return httpErr
}

// AsCollationError unwraps err into a CollationError
func AsCollationError(err error) (*CollationError, bool) {
	var ce *CollationError
	if pkgerrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsKind reports whether err is a CollationError of the given kind
func IsKind(err error, kind Kind) bool {
	ce, ok := AsCollationError(err)
	return ok && ce.Kind == kind
}
