// Package preflight provides readiness checks for the job database,
// filesystem paths, and the external providers the pipelines call.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup. Only the database and directory
//     checks are fatal; a missing provider just disables its pipeline.
//   - The CLI "millwork status" command displays the same results so an
//     operator can see which providers are live before queueing work.
package preflight
