package model

import "time"

// SheetType tags which ingestion pipeline a workbook belongs to.
type SheetType string

const (
	SheetDispatchFleet SheetType = "dispatch_fleet"
	SheetPhysician     SheetType = "physician"
)

// StagedRow is a parsed spreadsheet row waiting for linkage and merge.
// Rows are purged and recreated for a (project, sheet type) pair on every run.
type StagedRow struct {
	ProjectID      string            `json:"project_id"`
	SheetType      SheetType         `json:"sheet_type"`
	RowNumber      int               `json:"row_number"`
	SubjectName    string            `json:"subject_name"`
	CollaboratorID string            `json:"collaborator_id,omitempty"`
	Cells          map[string]string `json:"cells"`
}

// Linked reports whether the row was resolved to a collaborator.
func (r StagedRow) Linked() bool {
	return r.CollaboratorID != ""
}

// Phase is a step of the ingestion state machine.
type Phase string

const (
	PhaseStaging  Phase = "staging"
	PhaseLinking  Phase = "linking"
	PhaseMerging  Phase = "merging"
	PhaseDone     Phase = "done"
	PhaseRejected Phase = "rejected"
)

// RunStatus is the final outcome of an ingestion run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusDone     RunStatus = "done"
	RunStatusRejected RunStatus = "rejected"
	RunStatusFailed   RunStatus = "failed"
)

// DiagnosticKind classifies a non-fatal condition met during a run.
type DiagnosticKind string

const (
	DiagSkippedRow     DiagnosticKind = "skipped_row"
	DiagUnmatched      DiagnosticKind = "unmatched"
	DiagAmbiguous      DiagnosticKind = "ambiguous"
	DiagManualEdit     DiagnosticKind = "manual_edit"
	DiagNotEnrolled    DiagnosticKind = "not_enrolled"
	DiagLookupFallback DiagnosticKind = "lookup_fallback"
	DiagScoring        DiagnosticKind = "scoring"
)

// Diagnostic is one entry of a run's diagnostic log.
type Diagnostic struct {
	Kind           DiagnosticKind `json:"kind"`
	Row            int            `json:"row,omitempty"`
	Subject        string         `json:"subject,omitempty"`
	CollaboratorID string         `json:"collaborator_id,omitempty"`
	Message        string         `json:"message"`
}

// IngestionRun summarizes one import of a workbook into a project.
type IngestionRun struct {
	ID            string       `json:"id"`
	ProjectID     string       `json:"project_id"`
	SheetType     SheetType    `json:"sheet_type,omitempty"`
	Status        RunStatus    `json:"status"`
	Phase         Phase        `json:"phase"`
	Error         string       `json:"error,omitempty"`
	Staged        int          `json:"staged"`
	Linked        int          `json:"linked"`
	Merged        int          `json:"merged"`
	Created       int          `json:"created"`
	SkippedManual int          `json:"skipped_manual"`
	Diagnostics   []Diagnostic `json:"diagnostics,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
}

// Diag appends a diagnostic to the run.
func (r *IngestionRun) Diag(d Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
}

// Count returns how many diagnostics of kind k the run holds.
func (r *IngestionRun) Count(k DiagnosticKind) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Kind == k {
			n++
		}
	}
	return n
}
