package popup

import (
	"context"
	"errors"
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/oemhub/identity-broker/internal"
	"github.com/oemhub/identity-broker/internal/broker"
	"github.com/oemhub/identity-broker/internal/directory"
)

func TestPopup(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Popup Module Suite")
}

// Mock code issuer for testing
type mockCodeIssuer struct {
	codes         []string
	next          int
	errorToReturn error
	requestedFor  []string
}

func (m *mockCodeIssuer) IssueAuthorizationCode(_ context.Context, remoteID string) (string, error) {
	if m.errorToReturn != nil {
		return "", m.errorToReturn
	}
	m.requestedFor = append(m.requestedFor, remoteID)
	code := m.codes[m.next%len(m.codes)]
	m.next++
	return code, nil
}

var _ = ginkgo.Describe("PopupService", func() {
	var (
		service *Service
		issuer  *mockCodeIssuer
		session *broker.Session
		ctx     context.Context
	)

	ginkgo.BeforeEach(func() {
		issuer = &mockCodeIssuer{codes: []string{"code-1", "code-2"}}
		service = NewService(issuer, internal.AutomationConfig{
			AppURL:      "https://embedded.example.com",
			PartnerName: "acme",
		}, nil)
		session = &broker.Session{
			User: directory.UserRecord{LocalID: "local-1", RemoteID: "remote-1"},
		}
		ctx = context.Background()
	})

	ginkgo.Describe("edit-auth flow", func() {
		ginkgo.It("should build the edit URL with a fresh code", func() {
			// When
			url, err := service.IssuePopupURL(ctx, session, FlowEditAuth, Params{AuthID: "auth-55"})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(url).To(gomega.Equal("https://embedded.example.com/external/auth/edit/acme/auth-55?code=code-1"))
			gomega.Expect(issuer.requestedFor).To(gomega.Equal([]string{"remote-1"}))
		})

		ginkgo.It("should require an auth id", func() {
			// When
			_, err := service.IssuePopupURL(ctx, session, FlowEditAuth, Params{})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(err.Error()).To(gomega.ContainSubstring("auth_id is required"))
		})
	})

	ginkgo.Describe("create-auth flow", func() {
		ginkgo.It("should build the bare create URL without instance params", func() {
			// When
			url, err := service.IssuePopupURL(ctx, session, FlowCreateAuth, Params{})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(url).To(gomega.Equal("https://embedded.example.com/external/auth/create/acme?code=code-1"))
		})

		ginkgo.It("should include instance and external auth segments when both given", func() {
			// When
			url, err := service.IssuePopupURL(ctx, session, FlowCreateAuth, Params{
				SolutionInstanceID: "inst-7",
				ExternalAuthID:     "ext-3",
			})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(url).To(gomega.Equal("https://embedded.example.com/external/auth/create/acme/inst-7/ext-3?code=code-1"))
		})

		ginkgo.It("should reject an instance id without its external auth id", func() {
			// When
			_, err := service.IssuePopupURL(ctx, session, FlowCreateAuth, Params{SolutionInstanceID: "inst-7"})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(err.Error()).To(gomega.ContainSubstring("must be provided together"))
		})
	})

	ginkgo.Describe("configure-instance flow", func() {
		ginkgo.It("should build the configure URL", func() {
			// When
			url, err := service.IssuePopupURL(ctx, session, FlowConfigureInstance, Params{SolutionInstanceID: "inst-7"})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(url).To(gomega.Equal("https://embedded.example.com/external/solutions/acme/configure/inst-7?code=code-1"))
		})

		ginkgo.It("should require a solution instance id", func() {
			// When
			_, err := service.IssuePopupURL(ctx, session, FlowConfigureInstance, Params{})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("code handling", func() {
		ginkgo.It("should request a fresh code for every URL", func() {
			// When
			first, err1 := service.IssuePopupURL(ctx, session, FlowCreateAuth, Params{})
			second, err2 := service.IssuePopupURL(ctx, session, FlowCreateAuth, Params{})

			// Then
			gomega.Expect(err1).ToNot(gomega.HaveOccurred())
			gomega.Expect(err2).ToNot(gomega.HaveOccurred())
			gomega.Expect(first).ToNot(gomega.Equal(second))
			gomega.Expect(issuer.requestedFor).To(gomega.HaveLen(2))
		})

		ginkgo.It("should escape the code for URL safety", func() {
			// Given
			issuer.codes = []string{"c o/de+&?"}

			// When
			url, err := service.IssuePopupURL(ctx, session, FlowCreateAuth, Params{})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(url).To(gomega.Equal("https://embedded.example.com/external/auth/create/acme?code=c+o%2Fde%2B%26%3F"))
		})

		ginkgo.It("should surface a remote rejection", func() {
			// Given
			issuer.errorToReturn = errors.New("code quota exceeded")

			// When
			_, err := service.IssuePopupURL(ctx, session, FlowEditAuth, Params{AuthID: "auth-55"})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(errors.Is(err, internal.ErrRemoteRejected)).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("unknown flow", func() {
		ginkgo.It("should reject a flow kind it does not know", func() {
			// When
			_, err := service.IssuePopupURL(ctx, session, FlowKind("bogus"), Params{})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(err.Error()).To(gomega.ContainSubstring("unknown flow kind"))
		})
	})
})
