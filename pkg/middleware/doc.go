// Package middleware provides HTTP middleware for the read API, currently
// per-IP token-bucket rate limiting.
package middleware
