// Package npm is the client for the npm registry and downloads API.
//
// # Overview
//
// Two read-only endpoints are consumed: package metadata lookup by name, and
// point-in-time download counts keyed by (start, end, package). Every call is
// bounded by a fixed timeout and fails with one of three sentinel errors:
//
//   - ErrInvalidName: the name violates the registry grammar; rejected before
//     any network call
//   - ErrNotFound: the package does not exist upstream; terminal, not retried
//   - ErrUnavailable: transient network/timeout/non-2xx failure; callers treat
//     it as "no data for this point" and continue
//
// # Usage Example
//
//	client := npm.NewClient(npm.Config{})
//	info, err := client.FetchPackageInfo(ctx, "@scope/pkg")
//	if errors.Is(err, npm.ErrNotFound) {
//		// stop tracking, the package is gone
//	}
//
// # Related Packages
//
//   - pkg/collector: drives this client under the provider's rate limits
package npm
