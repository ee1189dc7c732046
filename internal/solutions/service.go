// Package solutions forwards solution-instance and authentication
// operations to the automation platform under the session's delegated
// token. There is no broker logic here beyond requiring an established
// delegation.
package solutions

import (
	"context"
	"log/slog"

	"github.com/oemhub/identity-broker/internal"
	"github.com/oemhub/identity-broker/internal/automation"
	"github.com/oemhub/identity-broker/internal/broker"
	"github.com/oemhub/identity-broker/internal/popup"
	"github.com/oemhub/identity-broker/pkg/logger"
)

type Automation interface {
	ViewerDetails(ctx context.Context, delegatedToken string) (*automation.ViewerDetails, error)
	ListAuthentications(ctx context.Context, delegatedToken string) ([]automation.Authentication, error)
	DeleteAuthentication(ctx context.Context, delegatedToken, authID string) error
	ListSolutions(ctx context.Context) ([]automation.Solution, error)
	ListSolutionInstances(ctx context.Context, delegatedToken string) ([]automation.SolutionInstance, error)
	CreateSolutionInstance(ctx context.Context, delegatedToken, solutionID, name string) (string, error)
	UpdateSolutionInstance(ctx context.Context, delegatedToken, instanceID string, enabled bool) error
	DeleteSolutionInstance(ctx context.Context, delegatedToken, instanceID string) error
}

type PopupIssuer interface {
	IssuePopupURL(ctx context.Context, session *broker.Session, kind popup.FlowKind, params popup.Params) (string, error)
}

type Service struct {
	automation Automation
	popups     PopupIssuer
	logger     *slog.Logger
}

func NewService(auto Automation, popups PopupIssuer, lg *slog.Logger) *Service {
	if lg == nil {
		lg = logger.L()
	}
	return &Service{
		automation: auto,
		popups:     popups,
		logger:     lg,
	}
}

// delegated returns the session's token or fails fast. The automation
// client is never invoked with an empty token.
func delegated(session *broker.Session) (string, error) {
	if session == nil || session.DelegatedToken == "" {
		return "", internal.ErrDelegationMissing
	}
	return session.DelegatedToken, nil
}

func (s *Service) Viewer(ctx context.Context, session *broker.Session) (*automation.ViewerDetails, error) {
	token, err := delegated(session)
	if err != nil {
		return nil, err
	}
	details, err := s.automation.ViewerDetails(ctx, token)
	if err != nil {
		return nil, internal.ErrRemoteRejected.WithCause(err)
	}
	return details, nil
}

func (s *Service) Authentications(ctx context.Context, session *broker.Session) ([]automation.Authentication, error) {
	token, err := delegated(session)
	if err != nil {
		return nil, err
	}
	auths, err := s.automation.ListAuthentications(ctx, token)
	if err != nil {
		return nil, internal.ErrRemoteRejected.WithCause(err)
	}
	return auths, nil
}

func (s *Service) DeleteAuthentication(ctx context.Context, session *broker.Session, authID string) error {
	token, err := delegated(session)
	if err != nil {
		return err
	}
	if authID == "" {
		return internal.NewValidationError("auth_id is required")
	}
	if err := s.automation.DeleteAuthentication(ctx, token, authID); err != nil {
		return internal.ErrRemoteRejected.WithCause(err)
	}
	return nil
}

// Solutions lists the partner's solution catalog; this is a master-token
// query, so no delegation is needed.
func (s *Service) Solutions(ctx context.Context) ([]automation.Solution, error) {
	solutions, err := s.automation.ListSolutions(ctx)
	if err != nil {
		return nil, internal.ErrRemoteRejected.WithCause(err)
	}
	return solutions, nil
}

func (s *Service) Instances(ctx context.Context, session *broker.Session) ([]automation.SolutionInstance, error) {
	token, err := delegated(session)
	if err != nil {
		return nil, err
	}
	instances, err := s.automation.ListSolutionInstances(ctx, token)
	if err != nil {
		return nil, internal.ErrRemoteRejected.WithCause(err)
	}
	return instances, nil
}

// CreateInstance creates the instance and returns its id together with a
// configure popup URL so the caller can finish setup in one round trip.
func (s *Service) CreateInstance(ctx context.Context, session *broker.Session, solutionID, name string) (string, string, error) {
	token, err := delegated(session)
	if err != nil {
		return "", "", err
	}
	if solutionID == "" || name == "" {
		return "", "", internal.NewValidationError("solution id and instance name are required")
	}

	instanceID, err := s.automation.CreateSolutionInstance(ctx, token, solutionID, name)
	if err != nil {
		return "", "", internal.ErrRemoteRejected.WithCause(err)
	}

	popupURL, err := s.popups.IssuePopupURL(ctx, session, popup.FlowConfigureInstance, popup.Params{
		SolutionInstanceID: instanceID,
	})
	if err != nil {
		return "", "", err
	}

	s.logger.Info("solution instance created",
		"instance_id", instanceID, "remote_id", session.User.RemoteID)
	return instanceID, popupURL, nil
}

func (s *Service) ConfigureURL(ctx context.Context, session *broker.Session, instanceID string) (string, error) {
	if instanceID == "" {
		return "", internal.NewValidationError("solution_instance_id is required")
	}
	return s.popups.IssuePopupURL(ctx, session, popup.FlowConfigureInstance, popup.Params{
		SolutionInstanceID: instanceID,
	})
}

func (s *Service) SetInstanceEnabled(ctx context.Context, session *broker.Session, instanceID string, enabled bool) error {
	token, err := delegated(session)
	if err != nil {
		return err
	}
	if instanceID == "" {
		return internal.NewValidationError("solution_instance_id is required")
	}
	if err := s.automation.UpdateSolutionInstance(ctx, token, instanceID, enabled); err != nil {
		return internal.ErrRemoteRejected.WithCause(err)
	}
	return nil
}

func (s *Service) DeleteInstance(ctx context.Context, session *broker.Session, instanceID string) error {
	token, err := delegated(session)
	if err != nil {
		return err
	}
	if instanceID == "" {
		return internal.NewValidationError("solution_instance_id is required")
	}
	if err := s.automation.DeleteSolutionInstance(ctx, token, instanceID); err != nil {
		return internal.ErrRemoteRejected.WithCause(err)
	}
	return nil
}
