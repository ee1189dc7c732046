// Package popup builds the URLs that embed the automation platform's own
// UI flows. Every URL carries a fresh single-use authorization code; codes
// are never cached or shared between calls.
package popup

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/oemhub/identity-broker/internal"
	"github.com/oemhub/identity-broker/internal/broker"
	"github.com/oemhub/identity-broker/pkg/logger"
)

type FlowKind string

const (
	FlowEditAuth          FlowKind = "edit_auth"
	FlowCreateAuth        FlowKind = "create_auth"
	FlowConfigureInstance FlowKind = "configure_instance"
)

// Params carries the flow-specific path segments. Which fields are
// required depends on the flow kind.
type Params struct {
	AuthID             string `json:"auth_id,omitempty"`
	SolutionInstanceID string `json:"solution_instance_id,omitempty"`
	ExternalAuthID     string `json:"external_auth_id,omitempty"`
}

// CodeIssuer is the slice of the automation client this package consumes.
type CodeIssuer interface {
	IssueAuthorizationCode(ctx context.Context, remoteID string) (string, error)
}

type Service struct {
	codes   CodeIssuer
	appURL  string
	partner string
	logger  *slog.Logger
}

func NewService(codes CodeIssuer, cfg internal.AutomationConfig, lg *slog.Logger) *Service {
	if lg == nil {
		lg = logger.L()
	}
	return &Service{
		codes:   codes,
		appURL:  cfg.AppURL,
		partner: cfg.PartnerName,
		logger:  lg,
	}
}

// IssuePopupURL requests a fresh authorization code scoped to the session's
// remote identity and formats the destination URL for the requested flow.
func (s *Service) IssuePopupURL(ctx context.Context, session *broker.Session, kind FlowKind, params Params) (string, error) {
	if err := validate(kind, params); err != nil {
		return "", err
	}

	code, err := s.codes.IssueAuthorizationCode(ctx, session.User.RemoteID)
	if err != nil {
		s.logger.Error("authorization code issuance failed",
			"remote_id", session.User.RemoteID, "flow", kind, "error", err)
		return "", internal.ErrRemoteRejected.WithCause(err)
	}

	dest := s.destination(kind, params) + "?code=" + url.QueryEscape(code)

	s.logger.Info("popup url issued",
		"remote_id", session.User.RemoteID,
		"flow", kind,
		"code_prefix", logger.TokenPrefix(code))
	return dest, nil
}

func validate(kind FlowKind, params Params) error {
	switch kind {
	case FlowEditAuth:
		if params.AuthID == "" {
			return internal.NewValidationError("auth_id is required for the edit-auth flow")
		}
	case FlowCreateAuth:
		// Instance and external auth id come as a pair or not at all.
		if (params.SolutionInstanceID == "") != (params.ExternalAuthID == "") {
			return internal.NewValidationError("solution_instance_id and external_auth_id must be provided together")
		}
	case FlowConfigureInstance:
		if params.SolutionInstanceID == "" {
			return internal.NewValidationError("solution_instance_id is required for the configure flow")
		}
	default:
		return internal.NewValidationError(fmt.Sprintf("unknown flow kind %q", kind))
	}
	return nil
}

func (s *Service) destination(kind FlowKind, params Params) string {
	switch kind {
	case FlowEditAuth:
		return fmt.Sprintf("%s/external/auth/edit/%s/%s", s.appURL, s.partner, params.AuthID)
	case FlowCreateAuth:
		base := fmt.Sprintf("%s/external/auth/create/%s", s.appURL, s.partner)
		if params.SolutionInstanceID != "" {
			return fmt.Sprintf("%s/%s/%s", base, params.SolutionInstanceID, params.ExternalAuthID)
		}
		return base
	case FlowConfigureInstance:
		return fmt.Sprintf("%s/external/solutions/%s/configure/%s", s.appURL, s.partner, params.SolutionInstanceID)
	}
	return s.appURL
}
