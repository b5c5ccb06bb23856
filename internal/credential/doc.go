// Package credential implements the per-subject OAuth credential lifecycle.
//
// A subject moves through these states:
//
//	Unauthorized -> Authorizing -> Authorized <-> Expired
//	      ^                                          |
//	      +---------------- Revoke / RefreshRejected +
//
// Manager is the only entry point callers need. GetUsableCredential returns
// a Result whose Status is authorized, authorization required (with a URL to
// present to the user) or retryable. Storage failures are the only errors it
// returns; they are never reported as "unauthorized".
//
// Records live exclusively in a Store (see the filestore, sqlite and postgres
// sub-packages). The manager reads and writes through the store on every call
// and serialises work per subject with a LockTable plus a singleflight group,
// so concurrent callers for one subject trigger at most one refresh while
// different subjects proceed in parallel.
package credential
