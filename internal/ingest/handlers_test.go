// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package ingest

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/practix/ugc-pipeline/internal/auth"
	"github.com/practix/ugc-pipeline/internal/bus"
	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/events"
)

const (
	testSubject = "4e9f3d4c-1111-4c8e-9f59-6f4a3f1f3b10"
	testFilmID  = "3f8b2c70-6f86-4c8e-9f59-6f4a3f1f3b10"
)

// capturedPublish is one call to the fake publisher.
type capturedPublish struct {
	topic string
	key   string
	value []byte
}

// fakePublisher hands every publish to a channel; Dispatch runs publishes in
// a goroutine, so tests receive with a timeout.
type fakePublisher struct {
	published chan capturedPublish
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(chan capturedPublish, 16)}
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, value []byte) error {
	p.published <- capturedPublish{topic: topic, key: key, value: value}
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) next(t *testing.T) capturedPublish {
	t.Helper()
	select {
	case c := <-p.published:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no publish within 2s")
		return capturedPublish{}
	}
}

type testAPI struct {
	server    *httptest.Server
	publisher *fakePublisher
	token     string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   testSubject,
			Audience:  jwt.ClaimStrings{"practix"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Server.HandlerTimeout = 5 * time.Second
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Bus.Backend = "log"

	publisher := newFakePublisher()
	dispatcher := NewDispatcher(cfg.Bus, map[string]bus.Publisher{"log": publisher})
	handler := NewHandler(dispatcher)
	router := NewRouter(cfg, auth.NewVerifierWithKey(&key.PublicKey, "practix"), handler)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testAPI{server: srv, publisher: publisher, token: token}
}

func (a *testAPI) request(t *testing.T, method, path, body string, authed, withRequestID bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	if withRequestID {
		req.Header.Set("X-Request-Id", "req-test-1")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestClickPublished(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodPost, "/api/v1/events/click",
		`{"element_id":"play-button","session_id":"sess-1","user_ts":1700000000}`, true, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	pub := api.publisher.next(t)
	if pub.topic != "click" {
		t.Fatalf("topic = %q, want click", pub.topic)
	}

	e, err := events.Unmarshal(pub.value)
	if err != nil {
		t.Fatal(err)
	}
	if e.UserID != testSubject {
		t.Fatalf("user_id = %q, want token subject", e.UserID)
	}
	if e.RequestID != "req-test-1" {
		t.Fatalf("request_id = %q", e.RequestID)
	}
	if e.SessionID != "sess-1" || e.UserTS != 1700000000 {
		t.Fatalf("client meta lost: %+v", e)
	}
	if e.ServerTS == 0 {
		t.Fatal("server_ts must be stamped")
	}
	if pub.key != e.EventID {
		t.Fatalf("click key = %q, want the event id %q", pub.key, e.EventID)
	}
}

func TestRatingPartitionedByFilm(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodPost, "/api/v1/films/"+testFilmID+"/rating",
		`{"value":10}`, true, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	pub := api.publisher.next(t)
	if pub.topic != "custom" {
		t.Fatalf("topic = %q, want custom", pub.topic)
	}
	if pub.key != testFilmID {
		t.Fatalf("key = %q, want the film id", pub.key)
	}

	e, err := events.Unmarshal(pub.value)
	if err != nil {
		t.Fatal(err)
	}
	if e.Subtype != events.SubtypeCreateFilmRating {
		t.Fatalf("subtype = %q", e.Subtype)
	}
}

func TestMissingTokenRejected(t *testing.T) {
	api := newTestAPI(t)
	resp := api.request(t, http.MethodPost, "/api/v1/events/click",
		`{"element_id":"x"}`, false, true)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMissingRequestIDRejected(t *testing.T) {
	api := newTestAPI(t)
	resp := api.request(t, http.MethodPost, "/api/v1/events/click",
		`{"element_id":"x"}`, true, false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestInvalidPayloadRejected(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodPost, "/api/v1/films/"+testFilmID+"/rating",
		`{"value":11}`, true, true)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	var body struct {
		Detail string `json:"detail"`
		Errors []struct {
			Field string `json:"field"`
			Tag   string `json:"tag"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Errors) == 0 || body.Errors[0].Field != "value" {
		t.Fatalf("body = %+v, want a value violation", body)
	}
}

func TestMissingRatingValueRejected(t *testing.T) {
	api := newTestAPI(t)

	// A body without "value" must not decode to a zero-value dislike.
	resp := api.request(t, http.MethodPost, "/api/v1/films/"+testFilmID+"/rating",
		`{}`, true, true)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}

	// An explicit zero is a real dislike and passes.
	resp = api.request(t, http.MethodPost, "/api/v1/films/"+testFilmID+"/rating",
		`{"value":0}`, true, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	api.publisher.next(t)
}

func TestMalformedJSONRejected(t *testing.T) {
	api := newTestAPI(t)
	resp := api.request(t, http.MethodPost, "/api/v1/events/click",
		`{"element_id"`, true, true)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

