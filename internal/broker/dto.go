package broker

import (
	"strings"

	"github.com/oemhub/identity-broker/internal"
)

type LoginDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (d LoginDTO) Validate() error {
	if d.Username == "" {
		return internal.NewValidationError("username is required")
	}
	if d.Password == "" {
		return internal.NewValidationError("password is required")
	}
	return nil
}

type RegisterDTO struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"name"`
	IsAdmin     bool   `json:"is_admin"`
}

// Validate reports every missing field at once, the way the registration
// endpoint always has.
func (d RegisterDTO) Validate() error {
	var missing []string
	if d.Username == "" {
		missing = append(missing, "username")
	}
	if d.Password == "" {
		missing = append(missing, "password")
	}
	if d.DisplayName == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return internal.NewValidationError(
			"missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

// UpdateCredentialsDTO is a partial profile update. Pointer fields
// distinguish "not sent" from "sent empty": an empty password is rejected
// outright rather than silently reset to some default.
type UpdateCredentialsDTO struct {
	DisplayName *string `json:"name,omitempty"`
	Username    *string `json:"username,omitempty"`
	Password    *string `json:"password,omitempty"`
}

func (d UpdateCredentialsDTO) Validate() error {
	if d.DisplayName == nil && d.Username == nil && d.Password == nil {
		return internal.NewValidationError("no fields to update")
	}
	if d.Username != nil && *d.Username == "" {
		return internal.NewValidationError("username must not be empty")
	}
	if d.DisplayName != nil && *d.DisplayName == "" {
		return internal.NewValidationError("name must not be empty")
	}
	if d.Password != nil && *d.Password == "" {
		return internal.NewValidationError("password must not be empty")
	}
	return nil
}

// LoginResponse is the transport view of a fresh session.
type LoginResponse struct {
	SessionHandle string `json:"session_handle"`
	LocalID       string `json:"local_id"`
	Name          string `json:"name"`
	Username      string `json:"username"`
	IsAdmin       bool   `json:"is_admin"`
}

func NewLoginResponse(session *Session) LoginResponse {
	return LoginResponse{
		SessionHandle: session.Handle,
		LocalID:       session.User.LocalID,
		Name:          session.User.DisplayName,
		Username:      session.User.Username,
		IsAdmin:       session.User.IsAdmin,
	}
}
