package reconcile

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/oemhub/identity-broker/internal/automation"
	"github.com/oemhub/identity-broker/internal/transport"
)

type ServiceAPI interface {
	DeleteUser(ctx context.Context, remoteID string) error
	Reconcile(ctx context.Context) (*Report, error)
}

type RemoteLister interface {
	ListRemoteUsers(ctx context.Context) ([]automation.RemoteUser, error)
}

// Handler exposes the admin surface: remote user listing, cross-system
// deletion, and on-demand reconciliation.
type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Remote  RemoteLister
}

func NewHandler(svc ServiceAPI, remote RemoteLister) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(nil),
		Service:     svc,
		Remote:      remote,
	}
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Remote.ListRemoteUsers(r.Context())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": users})
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	remoteID := chi.URLParam(r, "remoteID")
	if remoteID == "" {
		h.WriteError(w, http.StatusBadRequest, "missing user id")
		return
	}

	if err := h.Service.DeleteUser(r.Context(), remoteID); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.Reconcile(r.Context())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, report)
}
