package popup

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/oemhub/identity-broker/internal"
	"github.com/oemhub/identity-broker/internal/broker"
	"github.com/oemhub/identity-broker/internal/transport"
)

type ServiceAPI interface {
	IssuePopupURL(ctx context.Context, session *broker.Session, kind FlowKind, params Params) (string, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(nil),
		Service:     svc,
	}
}

type popupResponse struct {
	Data struct {
		PopupURL string `json:"popup_url"`
	} `json:"data"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, kind FlowKind) {
	session, ok := broker.SessionFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrNotAuthenticated)
		return
	}

	var params Params
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	popupURL, err := h.Service.IssuePopupURL(r.Context(), session, kind, params)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	var resp popupResponse
	resp.Data.PopupURL = popupURL
	h.WriteJSON(w, http.StatusOK, resp)
}

// EditAuthURL returns a popup URL for editing an existing authentication.
func (h *Handler) EditAuthURL(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, FlowEditAuth)
}

// CreateAuthURL returns a popup URL for creating a new authentication,
// optionally bound to a solution instance / external auth pair.
func (h *Handler) CreateAuthURL(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, FlowCreateAuth)
}
