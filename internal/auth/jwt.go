// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package auth verifies the RS256 access tokens issued by the platform auth
// service. This service never issues tokens; it only verifies.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/practix/ugc-pipeline/internal/config"
)

// Sentinel errors returned by Verify. Handlers map all of them to 401.
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("token has no subject")
	ErrWrongAudience  = errors.New("token audience mismatch")
	ErrExpiredToken   = errors.New("token expired")
	ErrUnexpectedAlgo = errors.New("unexpected signing algorithm")
)

// Claims are the token claims the pipeline cares about. Subject is the user
// id and becomes user_id on every ingested event.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates RS256 tokens against the platform public key.
type Verifier struct {
	publicKey *rsa.PublicKey
	audience  string
}

// NewVerifier loads the PEM-encoded RSA public key from the configured path.
func NewVerifier(cfg *config.SecurityConfig) (*Verifier, error) {
	pemData, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read jwt public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("parse jwt public key: %w", err)
	}
	return &Verifier{publicKey: key, audience: cfg.JWTAudience}, nil
}

// NewVerifierWithKey builds a verifier from an in-memory key. Used by tests.
func NewVerifierWithKey(key *rsa.PublicKey, audience string) *Verifier {
	return &Verifier{publicKey: key, audience: audience}
}

// Verify parses and validates a compact token string.
// Requirements: RS256 signature, unexpired, sub present, and aud containing
// the configured audience (when one is configured).
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedAlgo, t.Header["alg"])
		}
		return v.publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	if v.audience != "" && !containsAudience(claims.Audience, v.audience) {
		return nil, ErrWrongAudience
	}
	return claims, nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
