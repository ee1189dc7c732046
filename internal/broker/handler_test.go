package broker

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/oemhub/identity-broker/internal/directory"
)

var _ = ginkgo.Describe("BrokerHandler", func() {
	var (
		handler *Handler
		mockDir *mockDirectory
	)

	login := func(username, password string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(LoginDTO{Username: username, Password: password})
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
		w := httptest.NewRecorder()
		handler.Login(w, req)
		return w
	}

	ginkgo.BeforeEach(func() {
		mockDir = newMockDirectory()
		mockDir.seed(directory.UserRecord{
			LocalID:     "local-1",
			RemoteID:    "remote-1",
			Username:    "alice",
			DisplayName: "Alice",
		}, "correct_password")

		service := NewService(
			mockDir,
			newMockAutomation(),
			NewSessionStore(),
			NewHandleCodec("test-session-secret-test-session-secret", time.Hour),
			nil,
			bcrypt.MinCost,
			nil,
		)
		handler = NewHandler(service)
	})

	ginkgo.Describe("POST /auth/login", func() {
		ginkgo.It("should return the session handle on success", func() {
			// When
			w := login("alice", "correct_password")

			// Then
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusOK))

			var resp LoginResponse
			gomega.Expect(json.NewDecoder(w.Body).Decode(&resp)).To(gomega.Succeed())
			gomega.Expect(resp.SessionHandle).ToNot(gomega.BeEmpty())
			gomega.Expect(resp.Username).To(gomega.Equal("alice"))
		})

		ginkgo.It("should never include the delegated token in the response body", func() {
			// When
			w := login("alice", "correct_password")

			// Then
			gomega.Expect(w.Body.String()).ToNot(gomega.ContainSubstring("delegated-token-abc123"))
		})

		ginkgo.It("should return 401 for bad credentials", func() {
			// When
			w := login("alice", "wrong")

			// Then
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should return 400 for a malformed body", func() {
			// When
			req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte("{not json")))
			w := httptest.NewRecorder()
			handler.Login(w, req)

			// Then
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("POST /auth/register", func() {
		ginkgo.It("should create the user and return 201", func() {
			// Given
			body, _ := json.Marshal(RegisterDTO{Username: "carol", Password: "secret123", DisplayName: "Carol"})

			// When
			req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
			w := httptest.NewRecorder()
			handler.Register(w, req)

			// Then
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusCreated))
			gomega.Expect(w.Body.String()).ToNot(gomega.ContainSubstring("password_hash"))
		})

		ginkgo.It("should return 409 for a duplicate username", func() {
			// Given
			body, _ := json.Marshal(RegisterDTO{Username: "alice", Password: "x", DisplayName: "X"})

			// When
			req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
			w := httptest.NewRecorder()
			handler.Register(w, req)

			// Then
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusConflict))
		})
	})

	ginkgo.Describe("SessionMiddleware", func() {
		var next http.Handler

		ginkgo.BeforeEach(func() {
			next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				session, ok := SessionFromContext(r.Context())
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(session.User.Username).To(gomega.Equal("alice"))
				w.WriteHeader(http.StatusOK)
			})
		})

		ginkgo.It("should pass a valid bearer handle through with the session on context", func() {
			// Given
			loginResp := login("alice", "correct_password")
			var resp LoginResponse
			gomega.Expect(json.NewDecoder(loginResp.Body).Decode(&resp)).To(gomega.Succeed())

			// When
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+resp.SessionHandle)
			w := httptest.NewRecorder()
			handler.SessionMiddleware(next).ServeHTTP(w, req)

			// Then
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should return 401 without an Authorization header", func() {
			// When
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			w := httptest.NewRecorder()
			handler.SessionMiddleware(next).ServeHTTP(w, req)

			// Then
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should return 401 after logout", func() {
			// Given
			loginResp := login("alice", "correct_password")
			var resp LoginResponse
			gomega.Expect(json.NewDecoder(loginResp.Body).Decode(&resp)).To(gomega.Succeed())

			logoutReq := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
			logoutReq.Header.Set("Authorization", "Bearer "+resp.SessionHandle)
			logoutW := httptest.NewRecorder()
			handler.Logout(logoutW, logoutReq)
			gomega.Expect(logoutW.Code).To(gomega.Equal(http.StatusNoContent))

			// When
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+resp.SessionHandle)
			w := httptest.NewRecorder()
			handler.SessionMiddleware(next).ServeHTTP(w, req)

			// Then
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Describe("RequireAdmin", func() {
		var next http.Handler

		ginkgo.BeforeEach(func() {
			next = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		})

		ginkgo.It("should return 403 for a non-admin session", func() {
			// Given
			loginResp := login("alice", "correct_password")
			var resp LoginResponse
			gomega.Expect(json.NewDecoder(loginResp.Body).Decode(&resp)).To(gomega.Succeed())

			// When: chain session middleware into the admin guard
			req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
			req.Header.Set("Authorization", "Bearer "+resp.SessionHandle)
			w := httptest.NewRecorder()
			handler.SessionMiddleware(handler.RequireAdmin(next)).ServeHTTP(w, req)

			// Then
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusForbidden))
		})

		ginkgo.It("should let an admin session through", func() {
			// Given
			mockDir.seed(directory.UserRecord{
				LocalID:  "local-9",
				RemoteID: "remote-9",
				Username: "root",
				IsAdmin:  true,
			}, "correct_password")
			loginResp := login("root", "correct_password")
			var resp LoginResponse
			gomega.Expect(json.NewDecoder(loginResp.Body).Decode(&resp)).To(gomega.Succeed())

			// When
			req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
			req.Header.Set("Authorization", "Bearer "+resp.SessionHandle)
			w := httptest.NewRecorder()
			handler.SessionMiddleware(handler.RequireAdmin(next)).ServeHTTP(w, req)

			// Then
			gomega.Expect(w.Code).To(gomega.Equal(http.StatusOK))
		})
	})
})
