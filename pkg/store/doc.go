// Package store persists tracked packages and their weekly download points
// in PostgreSQL. Writes go to the primary, range reads prefer a replica,
// and download-point upserts are idempotent on (package_name, date).
package store
