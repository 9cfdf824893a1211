// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package gridhttp exposes a grid session as a JSON API.
package gridhttp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/potatogrid/go-potatogrid/gridsession"
	"github.com/potatogrid/go-potatogrid/gridstore"
	"github.com/potatogrid/go-potatogrid/internal/auth"
)

const maxBodyBytes = 1 << 20

// Route paths
const (
	RouteRecords       = "/records"
	RouteRecord        = "/records/{key}"
	RouteStoredRecords = "/stored-records"
	RouteSession       = "/session"
	RouteSessionApply  = "/session/apply"
	RouteSessionCancel = "/session/cancel"
	RouteImages        = "/images"
)

// Messages returned with apply outcomes
const (
	MessageApplied        = "Records updated"
	MessageNothingToApply = "No rows to change"
	MessageApplyFailed    = "Changes could not be saved"
	MessageReloadFailed   = "Records were saved but could not be reloaded"
)

// Handlers serves one grid session
type Handlers struct {
	session  *gridsession.Session
	store    gridstore.Store
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandlers(session *gridsession.Session, store gridstore.Store, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		session:  session,
		store:    store,
		logger:   logger,
		validate: validator.New(),
	}
}

// Register adds the grid routes to r. Callers attach authentication to r beforehand.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc(RouteRecords, h.HandleListRows).Methods(http.MethodGet)
	r.HandleFunc(RouteRecords, h.HandleAddRow).Methods(http.MethodPost)
	r.HandleFunc(RouteRecord, h.HandleEditRow).Methods(http.MethodPatch)
	r.HandleFunc(RouteRecord, h.HandleDeleteRow).Methods(http.MethodDelete)
	r.HandleFunc(RouteStoredRecords, h.HandleFindStored).Methods(http.MethodGet)
	r.HandleFunc(RouteSession, h.HandleSession).Methods(http.MethodGet)
	r.HandleFunc(RouteSessionApply, h.HandleApply).Methods(http.MethodPost)
	r.HandleFunc(RouteSessionCancel, h.HandleCancel).Methods(http.MethodPost)
	r.HandleFunc(RouteImages, h.HandleImages).Methods(http.MethodGet)
}

func (h *Handlers) HandleListRows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RowsResponse{
		SessionID: h.session.ID(),
		State:     h.session.State(),
		Rows:      h.session.Rows(),
	})
}

// HandleAddRow appends a row built from the new-row template and the optional body fields
func (h *Handlers) HandleAddRow(w http.ResponseWriter, r *http.Request) {
	var fields RecordFields
	if !h.decodeFields(w, r, &fields, true) {
		return
	}

	rec := h.session.NewRecord()
	fields.applyTo(&rec)
	row, err := h.session.AddRecord(rec)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (h *Handlers) HandleEditRow(w http.ResponseWriter, r *http.Request) {
	key, ok := rowKey(w, r)
	if !ok {
		return
	}
	var fields RecordFields
	if !h.decodeFields(w, r, &fields, false) {
		return
	}

	row, err := h.session.Edit(key, fields.applyTo)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *Handlers) HandleDeleteRow(w http.ResponseWriter, r *http.Request) {
	key, ok := rowKey(w, r)
	if !ok {
		return
	}
	if err := h.session.Delete(key); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFindStored reads rows straight from storage; query parameters are column conditions
func (h *Handlers) HandleFindStored(w http.ResponseWriter, r *http.Request) {
	conds := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			conds[name] = values[0]
		}
	}
	filter, err := gridstore.ParseFilter(conds)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	records, err := h.store.Find(r.Context(), filter)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	if records == nil {
		records = []gridstore.Record{}
	}
	writeJSON(w, http.StatusOK, StoredRecordsResponse{Records: records})
}

func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	pending := h.session.Pending()
	writeJSON(w, http.StatusOK, SessionResponse{
		SessionID: h.session.ID(),
		State:     h.session.State(),
		Counts: PendingCounts{
			Added:   len(pending.Added),
			Edited:  len(pending.Edited),
			Deleted: len(pending.Deleted),
		},
		Pending: pending,
	})
}

func (h *Handlers) HandleApply(w http.ResponseWriter, r *http.Request) {
	res, err := h.session.Apply(r.Context())
	if errors.Is(err, gridsession.ErrReloadFailed) {
		h.logRequestError(r, "Reload after apply failed", err)
		writeJSON(w, http.StatusOK, ApplyResponse{
			Outcome: res.Outcome,
			Message: MessageApplied,
			Result:  res,
			Warning: MessageReloadFailed,
		})
		return
	}
	if err != nil {
		status := http.StatusInternalServerError
		if gridstore.IsUnavailable(err) {
			status = http.StatusServiceUnavailable
		}
		h.logRequestError(r, "Apply failed", err)
		writeJSON(w, status, ApplyResponse{
			Outcome: gridsession.OutcomeFailed,
			Message: MessageApplyFailed,
			Result:  res,
			Error:   err.Error(),
		})
		return
	}

	msg := MessageApplied
	if res.Outcome == gridsession.OutcomeNothingToApply {
		msg = MessageNothingToApply
	}
	writeJSON(w, http.StatusOK, ApplyResponse{Outcome: res.Outcome, Message: msg, Result: res})
}

func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Cancel(r.Context()); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	h.HandleListRows(w, r)
}

func (h *Handlers) HandleImages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ImagesResponse{Images: h.session.ImageOptions()})
}

func (h *Handlers) decodeFields(w http.ResponseWriter, r *http.Request, fields *RecordFields, allowEmpty bool) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(fields)
	if errors.Is(err, io.EOF) && allowEmpty {
		return true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return false
	}

	if err := h.validate.Struct(fields); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			writeJSON(w, http.StatusBadRequest, formatValidationErrors(validationErrs))
		} else {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		}
		return false
	}
	return true
}

func (h *Handlers) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gridsession.ErrRowNotFound):
		writeError(w, http.StatusNotFound, "row_not_found", "Row not found")
	case errors.Is(err, gridsession.ErrNotDeletable):
		writeError(w, http.StatusConflict, "row_not_deletable", "Row cannot be deleted")
	case errors.Is(err, gridsession.ErrUnknownImage):
		writeError(w, http.StatusBadRequest, "unknown_image", err.Error())
	case errors.Is(err, gridstore.ErrUnknownColumn), errors.Is(err, gridstore.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, "invalid_filter", err.Error())
	case gridstore.IsUnavailable(err):
		h.logRequestError(r, "Storage unavailable", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "Storage is unavailable")
	default:
		h.logRequestError(r, "Request failed", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}

func (h *Handlers) logRequestError(r *http.Request, msg string, err error) {
	userID, _ := auth.GetUserID(r.Context())
	deviceID, _ := auth.GetDeviceID(r.Context())
	h.logger.Error(msg, "error", err, "path", r.URL.Path, "user_id", userID, "device_id", deviceID)
}

func rowKey(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	key, err := uuid.Parse(mux.Vars(r)["key"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid row key")
		return uuid.Nil, false
	}
	return key, true
}

func formatValidationErrors(errs validator.ValidationErrors) ErrorResponse {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = fe.Tag()
	}
	return ErrorResponse{Error: "validation_error", Message: "Request validation failed", Fields: fields}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes a standardized error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
