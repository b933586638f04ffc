// README: Tests for the HMAC JWT verifier.
package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTVerifyRoundTrip(t *testing.T) {
	raw, err := SignJWT("s3cret", "driver42", "driver")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tok, err := NewJWTVerifier("s3cret").VerifyIDToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if tok.UID != "driver42" {
		t.Errorf("uid = %s, want driver42", tok.UID)
	}
	if role, _ := tok.Claims["role"].(string); role != "driver" {
		t.Errorf("role claim = %s, want driver", role)
	}
}

func TestJWTWrongSecretRejected(t *testing.T) {
	raw, err := SignJWT("s3cret", "rider1", "rider")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewJWTVerifier("other").VerifyIDToken(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken", err)
	}
}

func TestJWTRejectsMissingSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "rider"})
	raw, err := token.SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewJWTVerifier("s3cret").VerifyIDToken(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken", err)
	}
}

func TestJWTRejectsGarbage(t *testing.T) {
	if _, err := NewJWTVerifier("s3cret").VerifyIDToken(context.Background(), "not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken", err)
	}
}
