// Package profile holds the in-memory credential profiles and bearer token cache.
//
// # Overview
//
// A Profile names one tenant credential set: a username, a secret and the base
// URL of the identity-governance API it authenticates against. The Store keeps
// every profile the process knows about, the bearer tokens obtained for them,
// and a pointer to the "active" profile used when a caller does not name one.
//
// Nothing here is persisted. A process restart forgets every profile and token;
// deployments that run many short-lived instances should configure default
// service-account credentials so each instance derives the same
// environment-default profile.
//
// # Environment-default profile
//
// When default credentials are configured, the reserved profile ID
// EnvDefaultID is materialized lazily:
//
//   - Resolve("env-default") creates it on first use
//   - Resolve("") falls back to it when no active profile is set
//   - Delete of the active profile clears the pointer and rebuilds it
//
// # Token cache
//
// Tokens are keyed by (profile ID, normalized base URL), so one profile may hold
// distinct tokens for every endpoint it has logged into. A token is usable only
// while the current time is strictly before its expiry. Callers store an expiry
// that already includes an early-renewal margin.
//
// Changing a profile's username, secret or base URL drops all of its tokens.
//
// # Concurrency
//
// Every method is safe for concurrent use. The mutex is held only while maps
// are read or mutated, never across network I/O, so two concurrent logins for
// the same profile may both complete; the later StoreToken wins.
package profile
