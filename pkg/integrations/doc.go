// Package integrations provides HTTP clients for the external services the
// analyzer talks to.
//
// # Overview
//
// Each service has its own subpackage:
//
//   - [npm]: the npm registry (package documents and tarballs)
//   - [github]: the GitHub API (repository metadata and tarballs)
//   - [shields]: the badge service (coverage badge values)
//
// # Client Pattern
//
// All clients embed [Client], which provides:
//   - HTTP requests with retry for transient failures (5xx, 429, network errors)
//   - Response caching through [cache.Cache] with a per-client namespace and TTL
//   - HTTP and cache events reported to [observability] hooks
//
//	client := npm.NewClient(npm.Options{BaseURL: addr, Cache: c, TTL: time.Hour})
//	data, err := client.FetchPackage(ctx, "cross-spawn", false)  // false = use cache
//
// Status codes are mapped by [CheckStatus]: 404 and 410 become [ErrNotFound],
// everything else that is not 2xx wraps [ErrNetwork].
//
// [npm]: github.com/matzehuels/pkganalyzer/pkg/integrations/npm
// [github]: github.com/matzehuels/pkganalyzer/pkg/integrations/github
// [shields]: github.com/matzehuels/pkganalyzer/pkg/integrations/shields
// [cache.Cache]: github.com/matzehuels/pkganalyzer/pkg/cache.Cache
// [observability]: github.com/matzehuels/pkganalyzer/pkg/observability
package integrations
