package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/cadence-settings/internal/domain"
	"github.com/ignite/cadence-settings/internal/service/settings"
)

// SettingsHandlers exposes the settings engine over HTTP. The upstream
// gateway has already authenticated the caller and schema-validated the
// payload; everything here maps straight onto the service layer.
type SettingsHandlers struct {
	svc *settings.Service
}

// NewSettingsHandlers creates the handler set for the settings engine.
func NewSettingsHandlers(svc *settings.Service) *SettingsHandlers {
	return &SettingsHandlers{svc: svc}
}

// RegisterRoutes mounts the settings routes.
func (h *SettingsHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/settings/{domain}", func(r chi.Router) {
		r.Post("/exceptions", h.HandleCreateException)
		r.Put("/exceptions/{recordID}", h.HandleUpdateException)
		r.Delete("/exceptions/{recordID}", h.HandleDeleteException)
		r.Get("/effective/{userID}", h.HandleResolveEffective)
	})
}

type createExceptionRequest struct {
	Priority        string          `json:"priority"`
	CompanyID       string          `json:"company_id"`
	SubDepartmentID *string         `json:"sd_id"`
	UserID          *string         `json:"user_id"`
	Payload         json.RawMessage `json:"payload"`
}

// HandleCreateException creates a scoped exception record.
func (h *SettingsHandlers) HandleCreateException(w http.ResponseWriter, r *http.Request) {
	d := domain.SettingsDomain(chi.URLParam(r, "domain"))

	var req createExceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		settingsWriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	priority, ok := domain.ParsePriority(req.Priority)
	if !ok {
		settingsWriteError(w, "invalid priority", http.StatusBadRequest)
		return
	}

	rec, err := h.svc.CreateException(r.Context(), d, priority, domain.Scope{
		CompanyID:       req.CompanyID,
		SubDepartmentID: req.SubDepartmentID,
		UserID:          req.UserID,
	}, req.Payload)
	if err != nil {
		settingsWriteServiceError(w, err)
		return
	}
	settingsWriteJSON(w, rec, http.StatusCreated)
}

type updateExceptionRequest struct {
	Payload         json.RawMessage `json:"payload"`
	CompanyID       string          `json:"company_id"`
	SubDepartmentID *string         `json:"sd_id"`
	UserID          *string         `json:"user_id"`
}

// HandleUpdateException updates a record's payload, reassigning its scope
// when sd_id/user_id are present in the body.
func (h *SettingsHandlers) HandleUpdateException(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")

	var req updateExceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		settingsWriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var newScope *domain.Scope
	if req.SubDepartmentID != nil || req.UserID != nil {
		newScope = &domain.Scope{
			CompanyID:       req.CompanyID,
			SubDepartmentID: req.SubDepartmentID,
			UserID:          req.UserID,
		}
	}

	rec, err := h.svc.UpdateException(r.Context(), recordID, req.Payload, newScope)
	if err != nil {
		settingsWriteServiceError(w, err)
		return
	}
	settingsWriteJSON(w, rec, http.StatusOK)
}

// HandleDeleteException deletes a record, cascading the fallback.
func (h *SettingsHandlers) HandleDeleteException(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")
	if err := h.svc.DeleteException(r.Context(), recordID); err != nil {
		settingsWriteServiceError(w, err)
		return
	}
	settingsWriteJSON(w, map[string]string{"status": "deleted"}, http.StatusOK)
}

// HandleResolveEffective returns the record currently effective for a user.
func (h *SettingsHandlers) HandleResolveEffective(w http.ResponseWriter, r *http.Request) {
	d := domain.SettingsDomain(chi.URLParam(r, "domain"))
	userID := chi.URLParam(r, "userID")

	rec, err := h.svc.ResolveEffective(r.Context(), userID, d)
	if err != nil {
		settingsWriteServiceError(w, err)
		return
	}
	settingsWriteJSON(w, rec, http.StatusOK)
}

func settingsWriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settings.ErrConflict):
		settingsWriteError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, settings.ErrNotFound):
		settingsWriteError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, settings.ErrAdminImmutable):
		settingsWriteError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, settings.ErrInvalidScope),
		errors.Is(err, settings.ErrInvalidPriority),
		errors.Is(err, settings.ErrUnknownDomain):
		settingsWriteError(w, err.Error(), http.StatusBadRequest)
	default:
		settingsWriteError(w, "persistence error", http.StatusInternalServerError)
	}
}

func settingsWriteJSON(w http.ResponseWriter, v interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func settingsWriteError(w http.ResponseWriter, msg string, status int) {
	settingsWriteJSON(w, map[string]string{"error": msg}, status)
}
