// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding, and request parsing across the read API.
package httputil
