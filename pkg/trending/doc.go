// Package trending computes growth rankings over stored download history
// and serves them through the read API. Rankings are cached in a small
// in-process LRU fronting an optional shared Redis tier.
package trending
