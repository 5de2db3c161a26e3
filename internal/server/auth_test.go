package server

import (
	"errors"
	"testing"
)

func newTestAuth(t *testing.T) (*Auth, *DB) {
	t.Helper()
	db := openTestDB(t)
	a, err := NewAuth(db, nil)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return a, db
}

func TestRegisterAndLogin(t *testing.T) {
	a, _ := newTestAuth(t)

	id, token, err := a.Register("  tower ", "secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id == 0 || token == "" {
		t.Fatalf("Register returned id=%d token=%q", id, token)
	}

	gotID, user, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if gotID != id || user != "tower" {
		t.Errorf("token claims = %d %q, want %d tower", gotID, user, id)
	}

	loginID, _, err := a.Login("tower", "secret", "1.2.3.4")
	if err != nil || loginID != id {
		t.Errorf("Login = %d, %v", loginID, err)
	}
	if _, _, err := a.Login("tower", "wrong", "1.2.3.4"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, _, err := a.Login("ghost", "secret", "1.2.3.4"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	a, _ := newTestAuth(t)

	if _, _, err := a.Register("x", "secret"); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("short username: %v", err)
	}
	if _, _, err := a.Register("abcdefghijklmnopq", "secret"); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("long username: %v", err)
	}
	if _, _, err := a.Register("approach", "abc"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("short password: %v", err)
	}
	if _, _, err := a.Register("approach", "abcd"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := a.Register("approach", "abcd"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate: %v", err)
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	a, _ := newTestAuth(t)
	other, _ := newTestAuth(t)

	_, token, err := other.Register("ground", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := a.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign token: %v", err)
	}
	if _, _, err := a.ValidateToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: %v", err)
	}
}

func TestSecretPersisted(t *testing.T) {
	a, db := newTestAuth(t)
	_, token, err := a.Register("center", "secret")
	if err != nil {
		t.Fatal(err)
	}

	b, err := NewAuth(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := b.ValidateToken(token); err != nil {
		t.Errorf("token from earlier Auth on same db rejected: %v", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	a, _ := newTestAuth(t)
	for i := 0; i < maxLoginAttempts; i++ {
		if _, _, err := a.Login("nobody", "pw", "9.9.9.9"); errors.Is(err, ErrTooManyAttempts) {
			t.Fatalf("attempt %d rate limited", i+1)
		}
	}
	if _, _, err := a.Login("nobody", "pw", "9.9.9.9"); !errors.Is(err, ErrTooManyAttempts) {
		t.Errorf("attempt %d: %v, want rate limit", maxLoginAttempts+1, err)
	}
	if _, _, err := a.Login("nobody", "pw", "8.8.8.8"); errors.Is(err, ErrTooManyAttempts) {
		t.Error("other address should not be limited")
	}
}
