package users

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/crypto/bcrypt"

	"github.com/malekus40/ticket-reimbursement-system/internal/auth"
	"github.com/malekus40/ticket-reimbursement-system/internal/aws/awstest"
)

func newTestService() (*Service, *awstest.FakeDynamoDB) {
	fake := awstest.NewFakeDynamoDB()
	return NewService(NewStore(fake, "ReimbursementTable", nil), bcrypt.MinCost, nil), fake
}

func TestRegister_StoresEmployeeWithHashedPassword(t *testing.T) {
	svc, fake := newTestService()

	u, err := svc.Register(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if u.Role != auth.RoleEmployee {
		t.Fatalf("registration must create employees, got %s", u.Role)
	}

	item := fake.Item("USER#alice", "PROFILE")
	if item == nil {
		t.Fatalf("profile not stored under USER#alice / PROFILE")
	}
	stored := item["password"].(*types.AttributeValueMemberS).Value
	if stored == "s3cret" || bcrypt.CompareHashAndPassword([]byte(stored), []byte("s3cret")) != nil {
		t.Fatalf("password must be stored as a bcrypt hash")
	}
	if it := item["itemType"].(*types.AttributeValueMemberS).Value; it != ItemTypeUser {
		t.Fatalf("itemType mismatch: %s", it)
	}
}

func TestRegister_Rejections(t *testing.T) {
	svc, fake := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "", "pw"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty username, got %v", err)
	}
	if _, err := svc.Register(ctx, "alice", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty password, got %v", err)
	}
	if _, err := svc.Register(ctx, "a#b", "pw"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for key separator in username, got %v", err)
	}
	if _, err := svc.Register(ctx, "alice", strings.Repeat("x", 100)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for overlong password, got %v", err)
	}
	if fake.TotalCalls() != 0 {
		t.Fatalf("rejected registrations must not reach the store")
	}

	if _, err := svc.Register(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "other"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestProvision_Manager(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Provision(ctx, "bob", "pw", auth.RoleManager); err != nil {
		t.Fatalf("Provision error: %v", err)
	}
	u, err := svc.Authenticate(ctx, "bob", "pw")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if u.Role != auth.RoleManager {
		t.Fatalf("expected manager, got %s", u.Role)
	}

	if _, err := svc.Provision(ctx, "eve", "pw", auth.Role("admin")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown role, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, fake := newTestService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	fake.SetError(awstest.OpGetItem, errors.New("down"))
	if _, err := svc.Authenticate(ctx, "alice", "pw"); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}
