// Package collector walks weekly download buckets for tracked packages and
// persists the counts. Backfills cover up to a year of history per package;
// the daily update appends the newest completed bucket for every tracked
// package. Both paths are idempotent and tolerate partial provider failure.
package collector
