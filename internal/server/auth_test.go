package server

import (
	"testing"
	"time"

	"teamtask/internal/domain"
)

func TestIssueAndParseToken(t *testing.T) {
	cfg := AuthConfig{JWTSecret: "s3cret", Issuer: "teamtask", TokenTTL: time.Hour}
	u := domain.User{ID: "u1", Role: domain.RoleManager}

	token, expires, err := IssueToken(cfg, u, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expiry in the past: %s", expires)
	}
	subject, err := parseToken(token, cfg)
	if err != nil || subject != "u1" {
		t.Fatalf("parse: %q %v", subject, err)
	}

	expired, _, err := IssueToken(cfg, u, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name  string
		token string
		cfg   AuthConfig
	}{
		{"wrong secret", token, AuthConfig{JWTSecret: "other", Issuer: "teamtask"}},
		{"wrong issuer", token, AuthConfig{JWTSecret: "s3cret", Issuer: "someone-else"}},
		{"expired", expired, cfg},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseToken(tc.token, tc.cfg); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}

	if _, _, err := IssueToken(AuthConfig{}, u, time.Now()); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]bool{
		"Bearer abc": true,
		"bearer abc": true,
		"Basic abc":  false,
		"Bearer":     false,
		"Bearer a b": false,
	}
	for in, ok := range cases {
		if _, got := bearerToken(in); got != ok {
			t.Fatalf("bearerToken(%q) = %v, want %v", in, got, ok)
		}
	}
}
