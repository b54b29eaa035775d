// Package github provides an HTTP client for the GitHub API.
//
// # Overview
//
// The analyzer uses GitHub for two things: repository metadata (stars, forks,
// open issues, last push) and source tarballs of the analyzed commit.
//
// # Usage
//
//	pool, _ := tokens.New(strings.Split(os.Getenv("GITHUB_TOKENS"), ","), tokens.Options{})
//	client, err := github.NewClient(github.Options{Pool: pool, Cache: c, TTL: time.Hour})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	repo, err := client.Repository(ctx, "IndigoUnited", "node-cross-spawn", false)
//	body, err := client.Tarball(ctx, "IndigoUnited", "node-cross-spawn", gitHead)
//
// # Authentication
//
// Every request takes a lease from a [tokens.Pool] and reports the
// X-RateLimit-* response headers back to it, so concurrent analyses spread
// their calls across all configured tokens. A pool without tokens makes
// unauthenticated requests (60 requests/hour).
//
// [tokens.Pool]: github.com/matzehuels/pkganalyzer/pkg/tokens.Pool
package github
