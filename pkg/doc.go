// Package pkg provides the libraries of the pkganalyzer worker.
//
// # Overview
//
// pkganalyzer consumes package analysis jobs from a queue and, for each npm
// package, collects signals about its source and repository from sources
// that fail often: the GitHub API, the npm registry, a badge service and
// locally run tools such as npm outdated and npm audit. The pkg directory is
// organized into four areas:
//
//  1. Failure handling: [errors], [classify], [httputil]
//  2. External access: [tokens], [integrations], [toolrun], [download], [archive], [cache]
//  3. Analysis: [pkgdata], [collect], [analyze], [store]
//  4. Runtime: [queue], [consumer], [observability], [status], [config], [buildinfo]
//
// # Architecture
//
// The flow of one job:
//
//	queue.Broker.Receive
//	         ↓
//	    [consumer] (bounded concurrency, ack / requeue / drop)
//	         ↓
//	    [analyze] (registry document → manifest)
//	         ↓
//	    [download] (GitHub tarball, git clone or npm tarball)
//	         ↓
//	    [collect] (files, badges, linters, coverage, outdated, vulnerabilities, GitHub metadata)
//	         ↓
//	    [store] (MongoDB)
//
// # Failure Classes
//
// Every failure is transient, permanent or unrecoverable (see [errors]).
// Transient failures are retried inside [toolrun] and [integrations] and
// never reach the job. Permanent failures degrade a single signal to
// "unknown". Unrecoverable failures abort the job, which is acknowledged and
// dropped. Queue and database failures stop the worker.
//
// # Testing
//
// Run tests:
//
//	go test ./...                     # Unit tests
//	go test -tags integration ./...   # Include Redis, MongoDB and network tests
//
// Integration tests read REDIS_URL, MONGO_URL and GITHUB_TOKEN and skip when
// they are unset.
//
// [errors]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/errors
// [classify]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/classify
// [httputil]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/httputil
// [tokens]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/tokens
// [integrations]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/integrations
// [toolrun]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/toolrun
// [download]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/download
// [archive]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/archive
// [cache]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/cache
// [pkgdata]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/pkgdata
// [collect]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/collect
// [analyze]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/analyze
// [store]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/store
// [queue]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/queue
// [consumer]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/consumer
// [observability]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/observability
// [status]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/status
// [config]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/config
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/pkganalyzer/pkg/buildinfo
package pkg
