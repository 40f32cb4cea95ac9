package users

import (
	"errors"
	"time"

	"github.com/malekus40/ticket-reimbursement-system/internal/auth"
)

var (
	ErrValidation         = errors.New("validation rejected")
	ErrUserExists         = errors.New("user already exists")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBackendUnavailable = errors.New("user store unavailable")
)

// User is an account. PasswordHash never leaves the service in responses.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

const ItemTypeUser = "USER"

// userItem is the persisted profile, stored in the owner's partition next to their tickets.
type userItem struct {
	PK        string    `dynamodbav:"PK"` // USER#<username>
	SK        string    `dynamodbav:"SK"` // PROFILE
	ItemType  string    `dynamodbav:"itemType"`
	Username  string    `dynamodbav:"username"`
	Password  string    `dynamodbav:"password"`
	Role      string    `dynamodbav:"role"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}
