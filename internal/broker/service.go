package broker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/oemhub/identity-broker/internal"
	"github.com/oemhub/identity-broker/internal/core/locks"
	"github.com/oemhub/identity-broker/internal/directory"
	"github.com/oemhub/identity-broker/pkg/logger"
)

type Service struct {
	dir        Directory
	automation Automation
	sessions   *SessionStore
	handles    *HandleCodec
	locks      *locks.KeyedMutex
	bcryptCost int
	logger     *slog.Logger
}

// NewService builds the broker. idLocks must be the same instance the
// reconciler uses, so a credential update never interleaves with a delete
// or prune of the same remote identity; nil falls back to a private
// instance.
func NewService(dir Directory, automation Automation, sessions *SessionStore, handles *HandleCodec, idLocks *locks.KeyedMutex, bcryptCost int, lg *slog.Logger) *Service {
	if lg == nil {
		lg = logger.L()
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if idLocks == nil {
		idLocks = locks.NewKeyedMutex()
	}
	return &Service{
		dir:        dir,
		automation: automation,
		sessions:   sessions,
		handles:    handles,
		locks:      idLocks,
		bcryptCost: bcryptCost,
		logger:     lg,
	}
}

// Login verifies local credentials, exchanges the identity for a delegated
// token, and registers the session. The session is stored only after the
// token exchange has completed, so no reader ever observes a session
// without its token.
func (s *Service) Login(ctx context.Context, dto LoginDTO) (*Session, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	record, err := s.dir.FindByCredentials(ctx, dto.Username, dto.Password)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, internal.ErrAuthenticationFailed
		}
		return nil, internal.NewInternalError("credential lookup failed", err)
	}

	// Credentials were right; an unusable record is an integrity problem,
	// not a login problem, and is reported as such.
	if !record.Complete() {
		s.logger.Warn("login blocked by incomplete identity",
			"username", record.Username,
			"has_local_id", record.LocalID != "",
			"has_remote_id", record.RemoteID != "")
		return nil, internal.ErrIncompleteIdentity
	}

	token, err := s.automation.IssueDelegatedToken(ctx, record.RemoteID)
	if err != nil {
		s.logger.Error("delegated token exchange failed",
			"remote_id", record.RemoteID, "error", err)
		return nil, internal.ErrDelegationFailed.WithCause(err)
	}

	id := uuid.NewString()
	handle, err := s.handles.Encode(id)
	if err != nil {
		return nil, internal.NewInternalError("failed to mint session handle", err)
	}

	session := Session{
		Handle:         handle,
		User:           *record,
		DelegatedToken: token,
		CreatedAt:      time.Now(),
	}
	s.sessions.Put(id, session)

	s.logger.Info("user logged in",
		"username", record.Username,
		"remote_id", record.RemoteID,
		"token_prefix", logger.TokenPrefix(token))
	return &session, nil
}

// Logout is idempotent: an unknown, expired or tampered handle is simply a
// no-op.
func (s *Service) Logout(_ context.Context, handle string) {
	id, err := s.handles.Decode(handle)
	if err != nil {
		return
	}
	if s.sessions.Remove(id) {
		s.logger.Info("session removed")
	}
}

// Resolve maps a presented handle back to its live session.
func (s *Service) Resolve(_ context.Context, handle string) (*Session, error) {
	id, err := s.handles.Decode(handle)
	if err != nil {
		return nil, internal.ErrNotAuthenticated
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, internal.ErrNotAuthenticated
	}
	return &session, nil
}

// Register provisions the remote account first and writes the directory
// record only once the remote id is known, so no record ever exists with a
// dangling remote identity.
func (s *Service) Register(ctx context.Context, dto RegisterDTO) (*directory.UserRecord, error) {
	_, err := s.dir.FindByUsername(ctx, dto.Username)
	if err == nil {
		return nil, internal.ErrAlreadyExists
	}
	if !errors.Is(err, directory.ErrNotFound) {
		return nil, internal.NewInternalError("username lookup failed", err)
	}

	if err := dto.Validate(); err != nil {
		return nil, err
	}

	localID := uuid.NewString()
	remoteID, err := s.automation.CreateRemoteUser(ctx, localID, dto.DisplayName)
	if err != nil {
		s.logger.Error("remote user provisioning failed",
			"username", dto.Username, "error", err)
		return nil, internal.ErrRemoteRejected.WithCause(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	record := &directory.UserRecord{
		LocalID:      localID,
		RemoteID:     remoteID,
		Username:     dto.Username,
		DisplayName:  dto.DisplayName,
		PasswordHash: string(hash),
		IsAdmin:      dto.IsAdmin,
	}
	if err := s.dir.Insert(ctx, record); err != nil {
		if errors.Is(err, directory.ErrDuplicate) {
			return nil, internal.ErrAlreadyExists
		}
		return nil, internal.NewInternalError("directory insert failed", err)
	}

	s.logger.Info("user registered",
		"username", record.Username, "remote_id", record.RemoteID)
	return record, nil
}

// UpdateCredentials writes profile changes to the directory only. Live
// sessions keep the snapshot taken at login; callers re-login to pick up
// the new values.
func (s *Service) UpdateCredentials(ctx context.Context, localID string, dto UpdateCredentialsDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	record, err := s.dir.FindByLocalID(ctx, localID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return internal.ErrUserNotFound
		}
		return internal.NewInternalError("user lookup failed", err)
	}

	// Serialize against deletes and reconciliation prunes of the same
	// identity. Provisional records have no remote id yet, so the local
	// id stands in.
	key := record.RemoteID
	if key == "" {
		key = record.LocalID
	}
	unlock := s.locks.Lock(key)
	defer unlock()

	fields := directory.UpdateFields{
		DisplayName: dto.DisplayName,
		Username:    dto.Username,
	}
	if dto.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*dto.Password), s.bcryptCost)
		if err != nil {
			return internal.NewInternalError("failed to hash password", err)
		}
		hashed := string(hash)
		fields.PasswordHash = &hashed
	}

	if err := s.dir.Update(ctx, localID, fields); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return internal.ErrUserNotFound
		}
		return internal.NewInternalError("directory update failed", err)
	}

	s.logger.Info("credentials updated", "local_id", localID)
	return nil
}

// InvalidateByRemoteID tears down every live session for a remote
// identity. The reconciler calls this (through the event bus) before it
// removes a directory record.
func (s *Service) InvalidateByRemoteID(remoteID string) int {
	removed := s.sessions.RemoveByRemoteID(remoteID)
	if removed > 0 {
		s.logger.Info("sessions invalidated",
			"remote_id", remoteID, "count", removed)
	}
	return removed
}

// SessionCount is used by tests and the health surface.
func (s *Service) SessionCount() int {
	return s.sessions.Len()
}
