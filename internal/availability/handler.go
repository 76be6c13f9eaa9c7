package availability

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/bookings/internal/auth"
	httperrors "github.com/jw6ventures/bookings/internal/http/errors"
)

const maxBodyBytes = 64 << 10

// Handler exposes the availability queries and mutation as JSON for the
// viewer API. The router mounts it behind RequireSession.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ScheduleRoutes mounts the schedule procedures on r.
func (h *Handler) ScheduleRoutes(r chi.Router) {
	r.Get("/{schedule}", h.GetSchedule)
	r.Post("/update", h.UpdateSchedule)
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httperrors.WriteJSON(w, r, httperrors.Unauthorized("authentication required"))
		return
	}
	id, ok := ParseScheduleID(chi.URLParam(r, "schedule"))
	if !ok {
		httperrors.WriteJSON(w, r, httperrors.NotFound("schedule not found"))
		return
	}
	form, err := h.svc.Load(r.Context(), user.ID, id)
	if err != nil {
		httperrors.WriteJSON(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httperrors.WriteJSON(w, r, httperrors.Unauthorized("authentication required"))
		return
	}

	var in UpdateInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			httperrors.WriteJSON(w, r, httperrors.Validation("request body is required"))
			return
		}
		httperrors.WriteJSON(w, r, httperrors.Validation("malformed JSON body").WithField("body", err.Error()))
		return
	}
	if in.ScheduleID <= 0 {
		httperrors.WriteJSON(w, r, httperrors.NotFound("schedule not found"))
		return
	}

	form, err := h.svc.Update(r.Context(), user.ID, in)
	if err != nil {
		httperrors.WriteJSON(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// EventTypes answers the grouped selector options; scheduleId marks the
// selected ones.
func (h *Handler) EventTypes(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httperrors.WriteJSON(w, r, httperrors.Unauthorized("authentication required"))
		return
	}
	var scheduleID int64
	if raw := r.URL.Query().Get("scheduleId"); raw != "" {
		id, ok := ParseScheduleID(raw)
		if !ok {
			httperrors.WriteJSON(w, r, httperrors.Validation("invalid scheduleId").WithField("scheduleId", "must be a positive integer"))
			return
		}
		scheduleID = id
	}
	groups, err := h.svc.EventTypes(r.Context(), user.ID, scheduleID)
	if err != nil {
		httperrors.WriteJSON(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
