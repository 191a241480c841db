package service_test

import (
	"errors"
	"testing"

	"github.com/vibast-solutions/ms-go-market-auth/app/entity"
	"github.com/vibast-solutions/ms-go-market-auth/app/service"
)

func TestCheckPermission(t *testing.T) {
	admin := &entity.User{ID: 1, Role: "admin", Permissions: []string{"read_users", "moderate_listing"}}
	member := &entity.User{ID: 2, Role: "user", Permissions: []string{"create_listing"}}
	superadmin := &entity.User{ID: 3, Role: "superadmin", IsSuperadmin: true}

	if err := service.CheckPermission(admin, "read_users"); err != nil {
		t.Fatalf("expected admin to read users, got %v", err)
	}
	if err := service.CheckPermission(member, "read_users"); !errors.Is(err, service.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if err := service.CheckPermission(superadmin, "read_users"); !errors.Is(err, service.ErrAccessDenied) {
		t.Fatalf("superadmin flag alone must not grant permissions, got %v", err)
	}
	if err := service.CheckPermission(nil, "read_users"); !errors.Is(err, service.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for nil user, got %v", err)
	}
}

func TestBcryptHasher(t *testing.T) {
	hasher := service.NewBcryptHasher(4)

	hash, err := hasher.Hash("Abc12345!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !hasher.Verify("Abc12345!", hash) {
		t.Fatalf("expected password to verify")
	}
	if hasher.Verify("Abc12345?", hash) {
		t.Fatalf("expected wrong password to fail")
	}

	if service.NewBcryptHasher(100).Cost != 10 {
		t.Fatalf("expected out of range cost to fall back to default")
	}
}

func TestAPIKeyring(t *testing.T) {
	ring := service.NewAPIKeyring([]string{" listing-key ", "", "gateway-key"})
	if ring.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", ring.Len())
	}

	for _, key := range []string{"listing-key", "gateway-key", " gateway-key"} {
		if err := ring.Authenticate(key); err != nil {
			t.Fatalf("expected %q to authenticate, got %v", key, err)
		}
	}
	for _, key := range []string{"listing", "", "GATEWAY-KEY"} {
		if err := ring.Authenticate(key); !errors.Is(err, service.ErrInvalidAPIKey) {
			t.Fatalf("expected ErrInvalidAPIKey for %q, got %v", key, err)
		}
	}
	if err := service.NewAPIKeyring(nil).Authenticate("anything"); !errors.Is(err, service.ErrInvalidAPIKey) {
		t.Fatalf("expected empty keyring to reject, got %v", err)
	}
}
