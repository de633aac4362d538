package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestDiagnosticsSubject(t *testing.T) {
	ops := &Claims{Scopes: []string{ScopeDiagnostics}, RegisteredClaims: jwt.RegisteredClaims{Subject: "ops"}}
	viewer := &Claims{Scopes: []string{"read"}, RegisteredClaims: jwt.RegisteredClaims{Subject: "viewer"}}

	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"no claims", context.Background(), ""},
		{"nil claims", WithClaims(context.Background(), nil), ""},
		{"diagnostics scope", WithClaims(context.Background(), ops), "ops"},
		{"other scope", WithClaims(context.Background(), viewer), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DiagnosticsSubject(tt.ctx); got != tt.want {
				t.Fatalf("DiagnosticsSubject() = %q, want %q", got, tt.want)
			}
		})
	}
}
