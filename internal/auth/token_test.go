package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var secret = []byte("test-secret")

func validClaims() Claims {
	return Claims{
		Sub:  "usr_1",
		Name: "Teresa",
		JTI:  "jti_1",
		Exp:  time.Now().Add(time.Hour).Unix(),
	}
}

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(secret, validClaims())
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	claims, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.Sub != "usr_1" || claims.Name != "Teresa" || claims.JTI != "jti_1" {
		t.Errorf("claims round trip mismatch: %+v", claims)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, _ := IssueToken(secret, validClaims())
	if _, err := ParseToken([]byte("other-secret"), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsTamperedPayload(t *testing.T) {
	token, _ := IssueToken(secret, validClaims())
	parts := strings.Split(token, ".")
	tampered := parts[0] + "x." + parts[1]
	if _, err := ParseToken(secret, tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	claims := validClaims()
	claims.Exp = time.Now().Add(-time.Minute).Unix()
	token, _ := IssueToken(secret, claims)
	if _, err := ParseToken(secret, token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsMissingClaims(t *testing.T) {
	claims := validClaims()
	claims.Sub = ""
	token, _ := IssueToken(secret, claims)
	if _, err := ParseToken(secret, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Error("expected stable hash")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Error("expected distinct hashes")
	}
}
