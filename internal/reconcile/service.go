// Package reconcile keeps the directory and the automation platform's user
// sets consistent: explicit deletions propagate to both systems, and a
// reconciliation pass prunes records that drifted apart.
package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oemhub/identity-broker/internal"
	"github.com/oemhub/identity-broker/internal/automation"
	"github.com/oemhub/identity-broker/internal/core/events"
	"github.com/oemhub/identity-broker/internal/core/locks"
	"github.com/oemhub/identity-broker/internal/directory"
	"github.com/oemhub/identity-broker/pkg/logger"
)

type Directory interface {
	FindByRemoteID(ctx context.Context, remoteID string) (*directory.UserRecord, error)
	Delete(ctx context.Context, localID string) error
	ListAll(ctx context.Context) ([]directory.UserRecord, error)
}

type Automation interface {
	DeleteRemoteUser(ctx context.Context, remoteID string) error
	ListRemoteUsers(ctx context.Context) ([]automation.RemoteUser, error)
}

type Publisher interface {
	PublishSync(ctx context.Context, event events.Event) error
}

// Report lists the remote ids whose records were pruned on each side
// during one pass.
type Report struct {
	RemovedFromDirectory []string `json:"removed_from_directory"`
	RemovedFromRemote    []string `json:"removed_from_remote"`
}

func (r *Report) Empty() bool {
	return len(r.RemovedFromDirectory) == 0 && len(r.RemovedFromRemote) == 0
}

type Service struct {
	dir                Directory
	automation         Automation
	bus                Publisher
	pruneRemoteOrphans bool
	locks              *locks.KeyedMutex
	logger             *slog.Logger
}

// NewService builds the reconciler. idLocks must be the same instance the
// broker uses, so deletions and credential updates on one remote identity
// serialize across services; nil falls back to a private instance.
func NewService(dir Directory, auto Automation, bus Publisher, idLocks *locks.KeyedMutex, cfg internal.ReconcileConfig, lg *slog.Logger) *Service {
	if lg == nil {
		lg = logger.L()
	}
	if idLocks == nil {
		idLocks = locks.NewKeyedMutex()
	}
	return &Service{
		dir:                dir,
		automation:         auto,
		bus:                bus,
		pruneRemoteOrphans: cfg.PruneRemoteOrphans,
		locks:              idLocks,
		logger:             lg,
	}
}

// DeleteUser removes the user from the automation platform first and then
// from the directory. A second call on the same id reports NotFound. If
// the directory record vanishes between the remote deletion and the local
// one, the inconsistency is surfaced as OrphanAfterDelete for the next
// reconciliation pass rather than swallowed.
func (s *Service) DeleteUser(ctx context.Context, remoteID string) error {
	unlock := s.locks.Lock(remoteID)
	defer unlock()

	record, err := s.dir.FindByRemoteID(ctx, remoteID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return internal.ErrUserNotFound
		}
		return internal.NewInternalError("directory lookup failed", err)
	}

	if err := s.automation.DeleteRemoteUser(ctx, remoteID); err != nil {
		s.logger.Error("remote user deletion failed",
			"remote_id", remoteID, "error", err)
		return internal.ErrRemoteRejected.WithCause(err)
	}

	// Sessions go first so a deleted user cannot keep acting through a
	// live handle while the record is being removed.
	s.invalidateSessions(ctx, remoteID, record.LocalID, "user deleted")

	if err := s.dir.Delete(ctx, record.LocalID); err != nil {
		s.logger.Error("directory record removal failed after remote delete",
			"remote_id", remoteID, "local_id", record.LocalID, "error", err)
		return internal.ErrOrphanAfterDelete.WithCause(err)
	}

	s.logger.Info("user deleted from both systems",
		"remote_id", remoteID, "local_id", record.LocalID)
	return nil
}

// Reconcile compares the two user sets and prunes drift. The forward
// direction (directory records whose remote account is gone) always runs;
// the reverse direction (remote accounts with no directory record) only
// runs when prune_remote_orphans is configured. A second pass with no
// intervening change produces an empty report.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	remoteUsers, err := s.automation.ListRemoteUsers(ctx)
	if err != nil {
		return nil, internal.ErrRemoteUnavailable.WithCause(err)
	}

	records, err := s.dir.ListAll(ctx)
	if err != nil {
		return nil, internal.NewInternalError("directory listing failed", err)
	}

	remoteSet := make(map[string]struct{}, len(remoteUsers))
	for _, ru := range remoteUsers {
		remoteSet[ru.ID] = struct{}{}
	}

	report := &Report{
		RemovedFromDirectory: []string{},
		RemovedFromRemote:    []string{},
	}

	for _, record := range records {
		// Provisional records have no remote counterpart yet and are
		// never reconciled.
		if record.RemoteID == "" {
			continue
		}
		if _, present := remoteSet[record.RemoteID]; present {
			continue
		}
		if s.pruneDirectoryRecord(ctx, record) {
			report.RemovedFromDirectory = append(report.RemovedFromDirectory, record.RemoteID)
		}
	}

	if s.pruneRemoteOrphans {
		localSet := make(map[string]struct{}, len(records))
		for _, record := range records {
			if record.RemoteID != "" {
				localSet[record.RemoteID] = struct{}{}
			}
		}
		for _, ru := range remoteUsers {
			if _, present := localSet[ru.ID]; present {
				continue
			}
			if s.pruneRemoteUser(ctx, ru) {
				report.RemovedFromRemote = append(report.RemovedFromRemote, ru.ID)
			}
		}
	}

	if report.Empty() {
		s.logger.Info("reconciliation pass clean")
	} else {
		s.logger.Info("reconciliation pass pruned drift",
			"removed_from_directory", len(report.RemovedFromDirectory),
			"removed_from_remote", len(report.RemovedFromRemote))
	}
	return report, nil
}

func (s *Service) pruneDirectoryRecord(ctx context.Context, record directory.UserRecord) bool {
	unlock := s.locks.Lock(record.RemoteID)
	defer unlock()

	s.invalidateSessions(ctx, record.RemoteID, record.LocalID, "reconciliation pruned stale record")

	if err := s.dir.Delete(ctx, record.LocalID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			// a concurrent delete got there first; nothing to report
			return false
		}
		s.logger.Error("failed to prune stale directory record",
			"remote_id", record.RemoteID, "local_id", record.LocalID, "error", err)
		return false
	}

	s.logger.Info("pruned stale directory record",
		"remote_id", record.RemoteID, "username", record.Username)
	return true
}

func (s *Service) pruneRemoteUser(ctx context.Context, ru automation.RemoteUser) bool {
	unlock := s.locks.Lock(ru.ID)
	defer unlock()

	s.invalidateSessions(ctx, ru.ID, "", "reconciliation pruned orphaned remote user")

	if err := s.automation.DeleteRemoteUser(ctx, ru.ID); err != nil {
		s.logger.Error("failed to prune orphaned remote user",
			"remote_id", ru.ID, "error", err)
		return false
	}

	s.logger.Info("pruned orphaned remote user",
		"remote_id", ru.ID, "external_user_id", ru.ExternalUserID)
	return true
}

func (s *Service) invalidateSessions(ctx context.Context, remoteID, localID, reason string) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishSync(ctx, events.NewUserDeletedEvent(remoteID, localID, reason)); err != nil {
		s.logger.Error("session invalidation failed",
			"remote_id", remoteID, "error", err)
	}
}
