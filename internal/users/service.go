package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/malekus40/ticket-reimbursement-system/internal/auth"
	"github.com/malekus40/ticket-reimbursement-system/internal/logging"
)

// Repository is the persistence contract for accounts. *Store implements it.
type Repository interface {
	Create(ctx context.Context, u User) (*User, error)
	Get(ctx context.Context, username string) (*User, error)
}

// Service registers and authenticates accounts.
type Service struct {
	repo Repository
	cost int
	log  *zap.Logger
}

// NewService returns a Service hashing passwords at bcrypt cost.
func NewService(repo Repository, cost int, log *zap.Logger) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, cost: cost, log: logging.OrNop(log)}
}

// Register creates an employee account. Managers are only created through Provision.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	return s.Provision(ctx, username, password, auth.RoleEmployee)
}

// Provision creates an account with the given role.
func (s *Service) Provision(ctx context.Context, username, password string, role auth.Role) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}
	if strings.ContainsAny(username, "#/") {
		return nil, fmt.Errorf("%w: username may not contain '#' or '/'", ErrValidation)
	}
	if _, err := auth.ParseRole(string(role)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		// bcrypt rejects passwords longer than 72 bytes
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	u, err := s.repo.Create(ctx, User{Username: username, PasswordHash: string(hash), Role: role})
	if err != nil {
		return nil, err
	}
	s.log.Info("user created", zap.String("username", u.Username), zap.String("role", u.Role.String()))
	return u, nil
}

// Authenticate checks username/password. Unknown users and wrong passwords
// both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.repo.Get(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
