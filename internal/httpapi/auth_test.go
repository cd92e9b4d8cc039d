package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"jassperfumes/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func (s *userStoreStub) UpdateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = user
	s.updates++
	return nil
}

func (s *userStoreStub) DeleteUser(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, username)
	return nil
}

func seededUserStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := seededUserStore()

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt hash, got %q", users[0].Password)
	}
	if store.updates == 0 {
		t.Fatalf("expected an upgrade write to the store")
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededUserStore())

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-one", time.Hour, seededUserStore())
	verifier := NewAuthManager("secret-two", time.Hour, nil)

	resp, err := issuer.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestLoginRefusesInactiveAccount(t *testing.T) {
	store := seededUserStore()
	store.users["ghost"] = domain.UserAccount{
		Username:  "ghost",
		Password:  "ghostpass",
		Role:      "staff",
		Active:    false,
		CreatedAt: time.Now().UTC(),
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(domain.LoginRequest{Username: "ghost", Password: "ghostpass"})
	if err == nil {
		t.Fatalf("expected inactive account to be refused")
	}
}

func TestRegisterUserValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededUserStore())

	for _, tc := range []struct {
		name string
		req  domain.RegisterUserRequest
	}{
		{"short username", domain.RegisterUserRequest{Username: "ab", Password: "secret99"}},
		{"short password", domain.RegisterUserRequest{Username: "clerk01", Password: "abc"}},
		{"bad role", domain.RegisterUserRequest{Username: "clerk01", Password: "secret99", Role: "owner"}},
		{"duplicate", domain.RegisterUserRequest{Username: "admin", Password: "secret99"}},
	} {
		if _, err := manager.RegisterUser(tc.req); err == nil {
			t.Fatalf("%s: expected registration to fail", tc.name)
		}
	}

	user, err := manager.RegisterUser(domain.RegisterUserRequest{Username: "clerk01", Password: "secret99"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Role != "staff" {
		t.Fatalf("expected default staff role, got %s", user.Role)
	}

	if _, err := manager.Login(domain.LoginRequest{Username: "clerk01", Password: "secret99"}); err != nil {
		t.Fatalf("new user login failed: %v", err)
	}
}

func TestUpdateUserPatchesAccount(t *testing.T) {
	store := seededUserStore()
	store.users["clerk01"] = domain.UserAccount{
		Username:  "clerk01",
		Password:  "secret99",
		Role:      "staff",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	manager := NewAuthManager("test-secret", time.Hour, store)

	role := "admin"
	active := false
	password := "rotated99"
	view, err := manager.UpdateUser("clerk01", domain.UserUpdateRequest{
		Role:     &role,
		Active:   &active,
		Password: &password,
	})
	if err != nil {
		t.Fatalf("update user failed: %v", err)
	}
	if view.Role != "admin" || view.Active {
		t.Fatalf("unexpected view after update: %+v", view)
	}

	persisted := store.users["clerk01"]
	if persisted.Role != "admin" || persisted.Active {
		t.Fatalf("expected patch to reach the store: %+v", persisted)
	}
	if !strings.HasPrefix(persisted.Password, "$2") {
		t.Fatalf("expected new password to be stored hashed, got %q", persisted.Password)
	}

	if _, err := manager.Login(domain.LoginRequest{Username: "clerk01", Password: "rotated99"}); err == nil {
		t.Fatalf("expected deactivated account to be refused at login")
	}
}

func TestUpdateUserValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededUserStore())

	badRole := "owner"
	if _, err := manager.UpdateUser("admin", domain.UserUpdateRequest{Role: &badRole}); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
	shortPassword := "abc"
	if _, err := manager.UpdateUser("admin", domain.UserUpdateRequest{Password: &shortPassword}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if _, err := manager.UpdateUser("nobody", domain.UserUpdateRequest{}); err == nil {
		t.Fatalf("expected missing user to be rejected")
	}
}

func TestDeleteUserRefusesSelfDelete(t *testing.T) {
	store := seededUserStore()
	store.users["clerk01"] = domain.UserAccount{
		Username:  "clerk01",
		Password:  "secret99",
		Role:      "staff",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	manager := NewAuthManager("test-secret", time.Hour, store)

	if err := manager.DeleteUser("admin", "admin"); err == nil {
		t.Fatalf("expected self-deletion to be refused")
	}

	if err := manager.DeleteUser("admin", "clerk01"); err != nil {
		t.Fatalf("delete user failed: %v", err)
	}
	if _, ok := store.users["clerk01"]; ok {
		t.Fatalf("expected account to be removed from the store")
	}
	if err := manager.DeleteUser("admin", "clerk01"); err == nil {
		t.Fatalf("expected a second delete to report a missing user")
	}
}
