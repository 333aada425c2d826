// Package preflight provides readiness checks for the filesystem paths,
// credentials, and external services faceomatic depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failure as a warning.
//   - The CLI "faceomatic preflight" and "faceomatic status" commands render
//     the results for an operator.
//
// Network checks are skipped when the credentials they need are missing; the
// credential check already reports that.
package preflight
