// Package mock provides test doubles for duewatch components.
//
// Clock gives tests control over time so token expiry and period
// boundaries can be simulated without sleeping. Store and Provider are
// in-memory stand-ins for credential.Store and credential.Provider that count
// the calls made to them. OAuthServer is an httptest-backed authorization
// server that speaks enough of RFC 6749 to drive the real OAuth client
// through code exchange, refresh and revocation.
package mock
