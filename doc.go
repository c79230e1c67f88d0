// Package fitAuth manages the client-side session lifecycle of the fitness
// coaching app: persisted credentials, the auth state the UI renders from,
// and the forced logout that runs when the server stops accepting the token.
//
// Everything is safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// fitAuth is the public surface. It exposes [Client], [Builder], [Config],
// [Machine], [Coordinator] and the [State] value type. Credential persistence
// lives in credstore, the HTTP interceptor in apiclient, and session value
// types in session.
//
// Only apiclient sees HTTP status codes. It reaches the coordinator through
// a one-method trigger interface, and the coordinator reaches the state
// machine through an injected func, so no package imports the one above it.
//
// # What this package must NOT do
//
//   - Hold a partial session. State carries a session only when authenticated.
//   - Let an in-flight login or restore resurrect a session after a logout.
//   - Run more than one logout sequence for a burst of rejected requests.
//   - Import any sub-package that re-imports fitAuth (no import cycles).
package fitAuth
