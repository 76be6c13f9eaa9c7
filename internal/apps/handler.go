package apps

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/jw6ventures/bookings/internal/http/errors"
)

const maxBodyBytes = 64 << 10

// Handler serves the admin apps JSON API. Authorization is applied by the
// router around the whole group.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the procedures on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/local", h.ListLocal)
	r.Post("/toggle", h.Toggle)
	r.Post("/enabled", h.SetEnabled)
	r.Post("/keys", h.SaveKeys)
}

type enabledRequest struct {
	Slug    string `json:"slug"`
	Enabled *bool  `json:"enabled"`
}

type enabledResponse struct {
	Enabled bool `json:"enabled"`
}

type keysRequest struct {
	Slug string          `json:"slug"`
	Type string          `json:"type"`
	Keys json.RawMessage `json:"keys"`
}

func (h *Handler) ListLocal(w http.ResponseWriter, r *http.Request) {
	apps, err := h.svc.ListLocal(r.Context(), r.URL.Query().Get("variant"))
	if err != nil {
		httperrors.WriteJSON(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEnabled(w, r)
	if !ok {
		return
	}
	enabled, err := h.svc.Toggle(r.Context(), req.Slug, *req.Enabled)
	if err != nil {
		httperrors.WriteJSON(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enabledResponse{Enabled: enabled})
}

func (h *Handler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEnabled(w, r)
	if !ok {
		return
	}
	enabled, err := h.svc.SetEnabled(r.Context(), req.Slug, *req.Enabled)
	if err != nil {
		httperrors.WriteJSON(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enabledResponse{Enabled: enabled})
}

func (h *Handler) SaveKeys(w http.ResponseWriter, r *http.Request) {
	var req keysRequest
	if err := decodeBody(w, r, &req); err != nil {
		httperrors.WriteJSON(w, r, err)
		return
	}
	verr := httperrors.Validation("invalid request")
	if req.Slug == "" {
		verr.WithField("slug", "required")
	}
	if req.Type == "" {
		verr.WithField("type", "required")
	}
	if len(req.Keys) == 0 {
		verr.WithField("keys", "required")
	}
	if len(verr.Fields) > 0 {
		httperrors.WriteJSON(w, r, verr)
		return
	}

	if err := h.svc.SaveKeys(r.Context(), req.Slug, req.Type, req.Keys); err != nil {
		httperrors.WriteJSON(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeEnabled(w http.ResponseWriter, r *http.Request) (enabledRequest, bool) {
	var req enabledRequest
	if err := decodeBody(w, r, &req); err != nil {
		httperrors.WriteJSON(w, r, err)
		return req, false
	}
	verr := httperrors.Validation("invalid request")
	if req.Slug == "" {
		verr.WithField("slug", "required")
	}
	if req.Enabled == nil {
		verr.WithField("enabled", "required")
	}
	if len(verr.Fields) > 0 {
		httperrors.WriteJSON(w, r, verr)
		return req, false
	}
	return req, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return httperrors.Validation("request body is required")
		}
		return httperrors.Validation("malformed JSON body").WithField("body", err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
