// Package npm provides an HTTP client for the npm registry.
//
// # Overview
//
// This package fetches package documents ("packuments") and published
// tarballs from the npm registry (https://registry.npmjs.org) or from a
// CouchDB replica of it, which serves the same document layout.
//
// # Usage
//
//	client := npm.NewClient(npm.Options{BaseURL: os.Getenv("NPM_ADDR")})
//
//	data, err := client.FetchPackage(ctx, "cross-spawn", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	manifest, err := pkgdata.ManifestFromData("cross-spawn", data)
//	body, err := client.Tarball(ctx, manifest.Dist.Tarball)
//
// # Caching
//
// Package documents are cached for the configured TTL. Pass refresh=true to
// bypass the cache. Tarballs are never cached.
//
// # Missing packages
//
// A package the registry does not know is an unrecoverable error: the job
// that asked for it will never succeed.
package npm
