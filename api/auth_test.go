package api

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSigningSecret = "test-secret"

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSigningSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "empty", header: "", wantErr: errMissingAuthorization},
		{name: "whitespace", header: "   ", wantErr: errMissingAuthorization},
		{name: "noPrefix", header: "token a.b.c", wantErr: errBadAuthorization},
		{name: "lowercasePrefix", header: "bearer a.b.c", wantErr: errBadAuthorization},
		{name: "notAJWT", header: "Bearer abc", wantErr: errBadAuthorization},
		{name: "tooManySegments", header: "Bearer a.b.c.d", wantErr: errBadAuthorization},
		{name: "valid", header: "Bearer a.b.c", want: "a.b.c"},
		{name: "validPadded", header: "  Bearer a.b.c  ", want: "a.b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bearerToken(tt.header)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("bearerToken(%q) error = %v, want %v", tt.header, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("bearerToken(%q): %v", tt.header, err)
			}
			if got != tt.want {
				t.Fatalf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestUserIDFromAuthHeader(t *testing.T) {
	auth := NewTestAuth([]byte(testSigningSecret), "board-audience", "board-issuer")

	token := signTestToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
		"aud": "board-audience",
		"iss": "board-issuer",
	})

	userID, err := auth.UserIDFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("unexpected user id: %q", userID)
	}
}

func TestUserIDFromAuthHeaderRejectsExpired(t *testing.T) {
	auth := NewTestAuth([]byte(testSigningSecret), "", "")

	token := signTestToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-2 * time.Minute).Unix(),
	})

	if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestUserIDFromAuthHeaderRejectsWrongAudience(t *testing.T) {
	auth := NewTestAuth([]byte(testSigningSecret), "board-audience", "")

	token := signTestToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
		"aud": "other-audience",
	})

	if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected wrong audience to be rejected")
	}
}

func TestUserIDFromAuthHeaderRejectsMissingSub(t *testing.T) {
	auth := NewTestAuth([]byte(testSigningSecret), "", "")

	token := signTestToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected missing sub to be rejected")
	}
}

func TestUserIDFromAuthHeaderRejectsBadSignature(t *testing.T) {
	auth := NewTestAuth([]byte("other-secret"), "", "")

	token := signTestToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected bad signature to be rejected")
	}
}
