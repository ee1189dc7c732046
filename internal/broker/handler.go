package broker

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/oemhub/identity-broker/internal"
	"github.com/oemhub/identity-broker/internal/transport"
)

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

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.Service.Login(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewLoginResponse(session))
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var dto RegisterDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.Service.Register(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	// Logging out an absent or expired handle is not an error.
	h.Service.Logout(r.Context(), h.ExtractTokenFromHeader(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrNotAuthenticated)
		return
	}

	var dto UpdateCredentialsDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Service.UpdateCredentials(r.Context(), session.User.LocalID, dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the identity snapshot held by the session.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrNotAuthenticated)
		return
	}
	h.WriteJSON(w, http.StatusOK, NewLoginResponse(session))
}

// SessionMiddleware resolves the Bearer handle to a live session and puts
// it on the request context.
func (h *Handler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle := h.ExtractTokenFromHeader(r)
		if handle == "" {
			h.WriteAppError(w, internal.ErrNotAuthenticated)
			return
		}

		session, err := h.Service.Resolve(r.Context(), handle)
		if err != nil {
			h.WriteAppError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), internal.ContextSessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin guards the admin surface (user deletion, reconciliation).
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			h.WriteAppError(w, internal.ErrNotAuthenticated)
			return
		}
		if !session.User.IsAdmin {
			h.WriteAppError(w, internal.ErrAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext returns the session placed by SessionMiddleware.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(internal.ContextSessionKey).(*Session)
	return session, ok
}
