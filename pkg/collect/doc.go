// Package collect gathers the source-level signals of a package.
//
// Each signal is produced by a [Collector]. A collector never fails the
// analysis for a flaky or broken external source: it degrades its field
// instead (false for outdated dependencies and vulnerabilities, absent for
// coverage). Only unrecoverable failures, those that mean the package itself
// is broken, are returned as errors.
//
// [Source] runs all collectors of one job concurrently and assembles their
// outputs into a [Result] in a fixed order, so the same inputs always yield
// the same result.
//
// Signals:
//
//   - files: README size, test-suite size, presence of .npmignore,
//     npm-shrinkwrap.json and a changelog
//   - badges: badge images referenced by the README
//   - linters: linters configured in the repository
//   - coverage: test coverage read from a coveralls or codecov badge
//   - outdatedDependencies: dependencies behind their latest release
//   - dependenciesVulnerabilities: known vulnerabilities of dependencies
//
// Repository metadata (stars, forks, issues) comes from [GitHubCollector],
// which runs next to Source in the analysis pipeline.
package collect
