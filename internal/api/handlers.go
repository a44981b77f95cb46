package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/staff-eval/internal/model"
	"github.com/sells-group/staff-eval/internal/reconcile"
	"github.com/sells-group/staff-eval/internal/sheet"
	"github.com/sells-group/staff-eval/internal/store"
)

type errorBody struct {
	Error  string              `json:"error"`
	Reason sheet.RejectReason  `json:"reason,omitempty"`
	Field  string              `json:"field,omitempty"`
	Run    *model.IngestionRun `json:"run,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// writeError maps service errors to status codes. Unexpected errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, err error) {
	if rej, ok := sheet.IsRejection(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: rej.Error(), Reason: rej.Reason, Field: rej.Field})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, reconcile.ErrNotEnrolled):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, reconcile.ErrInvalidEdit):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func (h *handler) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Project(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// importWorkbook accepts the workbook as the raw request body or as the
// "file" part of a multipart form.
func (h *handler) importWorkbook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	var (
		data []byte
		err  error
	)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		data, err = h.readFormFile(r)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "workbook exceeds upload limit"})
			return
		}
		badRequest(w, "could not read workbook: "+err.Error())
		return
	}
	if len(data) == 0 {
		badRequest(w, "empty workbook")
		return
	}

	run, err := h.svc.Ingest(r.Context(), chi.URLParam(r, "projectID"), data)
	if err != nil {
		if rej, ok := sheet.IsRejection(err); ok {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{
				Error:  rej.Error(),
				Reason: rej.Reason,
				Field:  rej.Field,
				Run:    run,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handler) readFormFile(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return nil, err
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	return io.ReadAll(f)
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := h.svc.Runs(r.Context(), chi.URLParam(r, "projectID"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []model.IngestionRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *handler) enroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CollaboratorID string `json:"collaborator_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.CollaboratorID == "" {
		badRequest(w, "collaborator_id is required")
		return
	}
	st, err := h.svc.Enroll(r.Context(), chi.URLParam(r, "projectID"), req.CollaboratorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *handler) editState(w http.ResponseWriter, r *http.Request) {
	var edit reconcile.StateEdit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&edit); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	st, err := h.svc.EditState(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "collaboratorID"), edit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
