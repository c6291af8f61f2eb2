// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func defaultClaims() *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "4e9f3d4c-1111-4c8e-9f59-6f4a3f1f3b10",
			Audience:  jwt.ClaimStrings{"practix"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestVerify(t *testing.T) {
	key := testKey(t)
	v := NewVerifierWithKey(&key.PublicKey, "practix")

	claims, err := v.Verify(signToken(t, key, defaultClaims()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "4e9f3d4c-1111-4c8e-9f59-6f4a3f1f3b10" {
		t.Fatalf("subject = %q", claims.Subject)
	}
}

func TestVerifyExpired(t *testing.T) {
	key := testKey(t)
	v := NewVerifierWithKey(&key.PublicKey, "practix")

	c := defaultClaims()
	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err := v.Verify(signToken(t, key, c))
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("err = %v, want ErrExpiredToken", err)
	}
}

func TestVerifyMissingSubject(t *testing.T) {
	key := testKey(t)
	v := NewVerifierWithKey(&key.PublicKey, "practix")

	c := defaultClaims()
	c.Subject = ""
	_, err := v.Verify(signToken(t, key, c))
	if !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("err = %v, want ErrMissingSubject", err)
	}
}

func TestVerifyWrongAudience(t *testing.T) {
	key := testKey(t)
	v := NewVerifierWithKey(&key.PublicKey, "practix")

	c := defaultClaims()
	c.Audience = jwt.ClaimStrings{"someone-else"}
	_, err := v.Verify(signToken(t, key, c))
	if !errors.Is(err, ErrWrongAudience) {
		t.Fatalf("err = %v, want ErrWrongAudience", err)
	}
}

func TestVerifyMultiAudience(t *testing.T) {
	key := testKey(t)
	v := NewVerifierWithKey(&key.PublicKey, "practix")

	c := defaultClaims()
	c.Audience = jwt.ClaimStrings{"billing", "practix"}
	if _, err := v.Verify(signToken(t, key, c)); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	key := testKey(t)
	other := testKey(t)
	v := NewVerifierWithKey(&other.PublicKey, "practix")

	_, err := v.Verify(signToken(t, key, defaultClaims()))
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsHS256(t *testing.T) {
	key := testKey(t)
	v := NewVerifierWithKey(&key.PublicKey, "practix")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, defaultClaims()).
		SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	key := testKey(t)
	v := NewVerifierWithKey(&key.PublicKey, "practix")

	if _, err := v.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
