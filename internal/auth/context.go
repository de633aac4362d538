/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import "context"

type claimsKey struct{}

// WithClaims attaches verified claims to ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims Middleware verified, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// DiagnosticsSubject names the caller of a diagnostics endpoint. It is
// empty unless ctx carries claims with ScopeDiagnostics.
func DiagnosticsSubject(ctx context.Context) string {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || !claims.HasScope(ScopeDiagnostics) {
		return ""
	}
	return claims.Subject
}
