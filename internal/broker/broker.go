// Package broker is the core of the identity bridge: it authenticates a
// local user, exchanges that identity for a delegated token on the
// automation platform, and binds the two in a server-side session.
package broker

import (
	"context"
	"time"

	"github.com/oemhub/identity-broker/internal/directory"
)

// Session binds a local identity to its delegated remote access for the
// lifetime of the process. User is a value copy taken at login: later
// directory edits are deliberately not reflected (callers re-login).
type Session struct {
	Handle         string
	User           directory.UserRecord
	DelegatedToken string
	CreatedAt      time.Time
}

// Directory is the slice of the directory capability the broker consumes.
type Directory interface {
	FindByCredentials(ctx context.Context, username, password string) (*directory.UserRecord, error)
	FindByUsername(ctx context.Context, username string) (*directory.UserRecord, error)
	FindByLocalID(ctx context.Context, localID string) (*directory.UserRecord, error)
	Insert(ctx context.Context, record *directory.UserRecord) error
	Update(ctx context.Context, localID string, fields directory.UpdateFields) error
}

// Automation is the slice of the automation client the broker consumes.
type Automation interface {
	IssueDelegatedToken(ctx context.Context, remoteID string) (string, error)
	CreateRemoteUser(ctx context.Context, externalUserID, name string) (string, error)
}

// ServiceAPI is what the HTTP layer programs against.
type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO) (*Session, error)
	Logout(ctx context.Context, handle string)
	Register(ctx context.Context, dto RegisterDTO) (*directory.UserRecord, error)
	UpdateCredentials(ctx context.Context, localID string, dto UpdateCredentialsDTO) error
	Resolve(ctx context.Context, handle string) (*Session, error)
}
