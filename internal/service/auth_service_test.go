package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"timebased_cover/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// mockAuthRepo is a lightweight in-test mock for repository.Authorization.
type mockAuthRepo struct {
	CreateFn        func(u models.User) (int, error)
	GetByUsernameFn func(username string) (*models.User, error)
	users           int
	countErr        error

	created  []models.User
	getCalls []string
}

func (m *mockAuthRepo) Create(_ context.Context, u models.User) (int, error) {
	m.created = append(m.created, u)
	return m.CreateFn(u)
}

func (m *mockAuthRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	m.getCalls = append(m.getCalls, username)
	return m.GetByUsernameFn(username)
}

func (m *mockAuthRepo) Count(context.Context) (int, error) {
	return m.users, m.countErr
}

const testSigningKey = "test-signing-key"

func newTestAuth(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, AuthConfig{SigningKey: testSigningKey, TokenTTL: time.Hour})
}

// --- SignUp tests ---

func TestAuthService_SignUp_SuccessHashesPasswordAndCallsRepo(t *testing.T) {
	mock := &mockAuthRepo{
		users:    3,
		CreateFn: func(models.User) (int, error) { return 42, nil },
	}
	svc := newTestAuth(mock)

	u, err := svc.SignUp(context.Background(), " alice ", "s3cr3t")
	if err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	if u.ID != 42 || u.Username != "alice" {
		t.Fatalf("unexpected user %+v", u)
	}

	// Ensure Create called exactly once with hashed password (not equal to raw) and valid bcrypt.
	if len(mock.created) != 1 {
		t.Fatalf("expected 1 Create call, got %d", len(mock.created))
	}
	stored := mock.created[0]
	if stored.PasswordHash == "s3cr3t" {
		t.Errorf("expected hashed password not equal to raw password")
	}
	if err := verifyPassword(stored.PasswordHash, "s3cr3t"); err != nil {
		t.Errorf("stored hash does not verify with original password: %v", err)
	}
	if stored.CreatedAt.IsZero() {
		t.Errorf("created_at not stamped")
	}
}

func TestAuthService_SignUp_RoleBootstrap(t *testing.T) {
	tests := []struct {
		name     string
		existing int
		want     string
	}{
		{name: "first account installs", existing: 0, want: models.RoleInstaller},
		{name: "later accounts operate", existing: 1, want: models.RoleOperator},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockAuthRepo{
				users:    tc.existing,
				CreateFn: func(models.User) (int, error) { return 1, nil },
			}
			u, err := newTestAuth(mock).SignUp(context.Background(), "kim", "pw")
			if err != nil {
				t.Fatalf("SignUp: %v", err)
			}
			if u.Role != tc.want || mock.created[0].Role != tc.want {
				t.Fatalf("role = %q (stored %q), want %q", u.Role, mock.created[0].Role, tc.want)
			}
		})
	}
}

func TestAuthService_SignUp_EmptyPassword(t *testing.T) {
	mock := &mockAuthRepo{
		CreateFn: func(models.User) (int, error) {
			t.Fatal("Create should not be called for empty password")
			return 0, nil
		},
	}
	svc := newTestAuth(mock)

	_, err := svc.SignUp(context.Background(), "bob", "   ")
	if !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestAuthService_SignUp_EmptyUsername(t *testing.T) {
	svc := newTestAuth(&mockAuthRepo{})
	if _, err := svc.SignUp(context.Background(), "  ", "pw"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
}

func TestAuthService_SignUp_RepoError(t *testing.T) {
	mock := &mockAuthRepo{
		CreateFn: func(models.User) (int, error) { return 0, errors.New("db down") },
	}
	if _, err := newTestAuth(mock).SignUp(context.Background(), "carl", "pass123"); err == nil {
		t.Fatalf("expected repo error, got nil")
	}

	counting := &mockAuthRepo{countErr: errors.New("count failed")}
	if _, err := newTestAuth(counting).SignUp(context.Background(), "carl", "pass123"); err == nil {
		t.Fatalf("expected count error, got nil")
	}
	if len(counting.created) != 0 {
		t.Fatalf("Create called after count failure")
	}
}

// --- GenerateToken tests ---

func TestAuthService_GenerateToken_Success(t *testing.T) {
	// Prepare a user with a valid bcrypt hash for the provided password.
	hash, err := hashPassword("letmein")
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	user := &models.User{ID: 7, Username: "diana", PasswordHash: hash, Role: models.RoleInstaller}

	mock := &mockAuthRepo{
		GetByUsernameFn: func(username string) (*models.User, error) {
			if username != "diana" {
				t.Fatalf("expected username 'diana', got %q", username)
			}
			return user, nil
		},
	}
	svc := newTestAuth(mock)

	token, err := svc.GenerateToken(context.Background(), "diana", "letmein")
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	// The token resolves back to the same caller and role.
	id, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	want := models.Identity{UserID: 7, Username: "diana", Role: models.RoleInstaller}
	if id != want {
		t.Fatalf("identity = %+v, want %+v", id, want)
	}
	if !id.CanMaintain() {
		t.Fatalf("installer token cannot maintain")
	}
	if len(mock.getCalls) != 1 {
		t.Fatalf("expected 1 GetByUsername call, got %d", len(mock.getCalls))
	}
}

func TestAuthService_GenerateToken_UserNotFound(t *testing.T) {
	mock := &mockAuthRepo{
		GetByUsernameFn: func(string) (*models.User, error) { return nil, nil },
	}
	_, err := newTestAuth(mock).GenerateToken(context.Background(), "ghost", "pw")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got: %v", err)
	}
}

func TestAuthService_GenerateToken_InvalidPassword(t *testing.T) {
	// Stored hash for different password.
	correctHash, err := hashPassword("correct")
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	mock := &mockAuthRepo{
		GetByUsernameFn: func(string) (*models.User, error) {
			return &models.User{ID: 1, Username: "eve", PasswordHash: correctHash, Role: models.RoleOperator}, nil
		},
	}
	_, err = newTestAuth(mock).GenerateToken(context.Background(), "eve", "wrong")
	if !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got: %v", err)
	}
}

func TestAuthService_GenerateToken_RepoError(t *testing.T) {
	mock := &mockAuthRepo{
		GetByUsernameFn: func(string) (*models.User, error) { return nil, errors.New("query failed") },
	}
	if _, err := newTestAuth(mock).GenerateToken(context.Background(), "john", "pw"); err == nil {
		t.Fatalf("expected repo error, got nil")
	}
}

// --- ParseToken tests ---

func TestAuthService_ParseToken_Success(t *testing.T) {
	svc := newTestAuth(&mockAuthRepo{})
	token, err := svc.issueToken(models.User{ID: 99, Username: "op", Role: models.RoleOperator})
	if err != nil {
		t.Fatalf("issueToken failed: %v", err)
	}

	id, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken returned error: %v", err)
	}
	if id.UserID != 99 || id.Username != "op" || id.CanMaintain() {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestAuthService_ParseToken_Malformed(t *testing.T) {
	svc := newTestAuth(&mockAuthRepo{})
	if _, err := svc.ParseToken("not-a-jwt"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}

// signed builds an HS256 token with the given key and claims.
func signed(t *testing.T, key string, claims *Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return s
}

func TestAuthService_ParseToken_Rejects(t *testing.T) {
	now := time.Now()
	valid := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "op",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
	foreign := valid
	foreign.Issuer = "someone-else"

	tests := []struct {
		name  string
		token string
	}{
		{name: "other key", token: signed(t, "different-key", &Claims{RegisteredClaims: valid, UserID: 5, Role: models.RoleOperator})},
		{name: "expired", token: signed(t, testSigningKey, &Claims{RegisteredClaims: expired, UserID: 11, Role: models.RoleOperator})},
		{name: "wrong issuer", token: signed(t, testSigningKey, &Claims{RegisteredClaims: foreign, UserID: 11, Role: models.RoleOperator})},
		{name: "unknown role", token: signed(t, testSigningKey, &Claims{RegisteredClaims: valid, UserID: 11, Role: "root"})},
	}
	svc := newTestAuth(&mockAuthRepo{})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.ParseToken(tc.token); err == nil {
				t.Fatalf("token accepted")
			}
		})
	}
}

func TestAuthService_ParseToken_UnexpectedAlg(t *testing.T) {
	svc := newTestAuth(&mockAuthRepo{})

	now := time.Now()

	// Generate RSA key for RS256 signing
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}

	tk := jwt.NewWithClaims(jwt.SigningMethodRS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: 12,
		Role:   models.RoleInstaller,
	})

	tokenStr, err := tk.SignedString(privateKey)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	if _, err = svc.ParseToken(tokenStr); err == nil {
		t.Fatalf("expected error due to unexpected signing method")
	}
}

// --- Configuration tests ---

func TestAuthService_TokenTTLFromConfig(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, AuthConfig{SigningKey: testSigningKey, TokenTTL: 5 * time.Minute})
	token, err := svc.issueToken(models.User{ID: 3, Username: "a", Role: models.RoleOperator})
	if err != nil {
		t.Fatalf("issueToken failed: %v", err)
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSigningKey), nil
	}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if ttl != 5*time.Minute {
		t.Fatalf("expected 5m lifetime, got %v", ttl)
	}
}

func TestAuthService_EmptyKeyGeneratesRandomKey(t *testing.T) {
	a := NewAuthService(&mockAuthRepo{}, AuthConfig{})
	b := NewAuthService(&mockAuthRepo{}, AuthConfig{})
	if a.ttl != defaultTokenTTL {
		t.Fatalf("expected default ttl, got %v", a.ttl)
	}

	token, err := a.issueToken(models.User{ID: 1, Username: "a", Role: models.RoleOperator})
	if err != nil {
		t.Fatalf("issueToken failed: %v", err)
	}
	if _, err := a.ParseToken(token); err != nil {
		t.Fatalf("own token rejected: %v", err)
	}
	if _, err := b.ParseToken(token); err == nil {
		t.Fatalf("token accepted by a service with a different random key")
	}
}
