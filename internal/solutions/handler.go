package solutions

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/oemhub/identity-broker/internal"
	"github.com/oemhub/identity-broker/internal/broker"
	"github.com/oemhub/identity-broker/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(nil),
		Service:     svc,
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*broker.Session, bool) {
	session, ok := broker.SessionFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrNotAuthenticated)
		return nil, false
	}
	return session, true
}

func (h *Handler) Viewer(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	details, err := h.Service.Viewer(r.Context(), session)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, details)
}

func (h *Handler) ListAuthentications(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	auths, err := h.Service.Authentications(r.Context(), session)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": auths})
}

func (h *Handler) DeleteAuthentication(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteAuthentication(r.Context(), session, chi.URLParam(r, "authID")); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListSolutions(w http.ResponseWriter, r *http.Request) {
	solutions, err := h.Service.Solutions(r.Context())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": solutions})
}

func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	instances, err := h.Service.Instances(r.Context(), session)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": instances})
}

type createInstanceDTO struct {
	SolutionID string `json:"solution_id"`
	Name       string `json:"name"`
}

func (h *Handler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var dto createInstanceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	instanceID, popupURL, err := h.Service.CreateInstance(r.Context(), session, dto.SolutionID, dto.Name)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]string{
			"instance_id": instanceID,
			"popup_url":   popupURL,
		},
	})
}

type updateInstanceDTO struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) UpdateInstance(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var dto updateInstanceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Service.SetInstanceEnabled(r.Context(), session, chi.URLParam(r, "instanceID"), dto.Enabled); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ConfigureInstance(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	popupURL, err := h.Service.ConfigureURL(r.Context(), session, chi.URLParam(r, "instanceID"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]string{"popup_url": popupURL},
	})
}

func (h *Handler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := h.Service.DeleteInstance(r.Context(), session, chi.URLParam(r, "instanceID")); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
