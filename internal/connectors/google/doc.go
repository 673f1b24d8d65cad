// Package google provides shared infrastructure for the Gmail source.
//
// It contains:
//   - a refresh-token oauth2.TokenSource and the Gmail service factory
//   - error mapping for common Google API status codes (401, 403, 404, 429)
//   - a token bucket rate limiter that honours 429 backoff
//
// # Usage
//
//	ts := google.RefreshTokenSource(ctx, clientID, clientSecret, refreshToken)
//	svc, err := google.NewGmailService(ctx, ts)
//
// Only the read-only Gmail scope is requested.
package google
