// Package identitymodel provides the trust-verification core of a
// federated-identity token stack: XML digital signature verification
// primitives (package dsig) and a safe, continuously-refreshed cache of
// external trust configuration (package configuration) with an explicit
// last-known-good fallback.
//
// The root package holds the shared error taxonomy. Security-relevant
// failures (structural, algorithm, verification) never fail open;
// availability-relevant failures (retrieval) may fail open to
// stale-but-previously-valid data.
package identitymodel
