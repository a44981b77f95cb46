package sheet

import (
	"errors"
	"fmt"
)

// RejectReason classifies why a whole workbook was refused.
type RejectReason string

const (
	ReasonUnreadable    RejectReason = "unreadable_workbook"
	ReasonEmpty         RejectReason = "empty_sheet"
	ReasonUnknownLayout RejectReason = "unknown_layout"
	ReasonMissingColumn RejectReason = "missing_column"
)

// Rejection is a fatal import error. Its message is meant for the person who
// uploaded the file.
type Rejection struct {
	Reason RejectReason
	Field  string
	Detail string
	Err    error
}

func (r *Rejection) Error() string {
	var msg string
	switch r.Reason {
	case ReasonUnreadable:
		msg = "the file could not be read as an .xlsx workbook"
	case ReasonEmpty:
		msg = "the first sheet has no header row"
	case ReasonUnknownLayout:
		msg = fmt.Sprintf("sheet layout not recognized: first header cell is %q", r.Field)
	case ReasonMissingColumn:
		msg = fmt.Sprintf("required column %q not found", r.Field)
	default:
		msg = "workbook rejected"
	}
	if r.Detail != "" {
		msg += " (" + r.Detail + ")"
	}
	return msg
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// IsRejection reports whether err carries a Rejection and returns it.
func IsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
