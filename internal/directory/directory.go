package directory

import (
	"context"
	"errors"
	"time"
)

// UserRecord is the canonical local identity. LocalID doubles as the
// external user id sent to the automation platform when the remote account
// is provisioned; RemoteID is the platform's own id for that account.
type UserRecord struct {
	LocalID      string    `json:"local_id" gorm:"column:local_id;primaryKey"`
	RemoteID     string    `json:"remote_id" gorm:"column:remote_id;index"`
	Username     string    `json:"username" gorm:"column:username;uniqueIndex"`
	DisplayName  string    `json:"display_name" gorm:"column:display_name"`
	PasswordHash string    `json:"-" gorm:"column:password_hash"`
	IsAdmin      bool      `json:"is_admin" gorm:"column:is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (UserRecord) TableName() string { return "users" }

// Complete reports whether the record carries both identity halves. A
// record missing either is provisional: it cannot log in and is skipped by
// reconciliation.
func (u *UserRecord) Complete() bool {
	return u.LocalID != "" && u.RemoteID != ""
}

// UpdateFields is a partial update; nil fields are left untouched.
type UpdateFields struct {
	DisplayName  *string
	Username     *string
	PasswordHash *string
}

func (f UpdateFields) Empty() bool {
	return f.DisplayName == nil && f.Username == nil && f.PasswordHash == nil
}

var (
	ErrNotFound  = errors.New("directory: record not found")
	ErrDuplicate = errors.New("directory: record already exists")
)

// Store is the directory capability. Backings are swappable: gorm over
// postgres in production, an in-memory map in tests and demos. Never a
// package-level singleton.
type Store interface {
	// FindByCredentials resolves a username/password pair to a record.
	// A missing user and a wrong password both return ErrNotFound so the
	// caller cannot distinguish which field was wrong.
	FindByCredentials(ctx context.Context, username, password string) (*UserRecord, error)
	FindByUsername(ctx context.Context, username string) (*UserRecord, error)
	FindByLocalID(ctx context.Context, localID string) (*UserRecord, error)
	FindByRemoteID(ctx context.Context, remoteID string) (*UserRecord, error)
	Insert(ctx context.Context, record *UserRecord) error
	Update(ctx context.Context, localID string, fields UpdateFields) error
	Delete(ctx context.Context, localID string) error
	ListAll(ctx context.Context) ([]UserRecord, error)
}
