// Package session defines the authenticated identity bundle held by a signed-in
// coach or student, and the pure mappings used to build one from a backend
// response.
//
// # Completeness
//
// A [Session] is either complete or absent. [New] and [Session.Validate] are the
// only ways a session is accepted by the rest of fitAuth; every restore from
// storage and every login result goes through them, so a half-populated value
// never reaches the state machine.
//
// # Role derivation
//
// The backend reports an [AccountType] that is distinct from the client's
// two-valued [Role]. [RoleFromAccountType] is total and has no fallback: an
// unknown account type is an error, never a default role.
//
// # What this package must NOT do
//
//   - Perform I/O. Persistence lives in credstore, transport in apiclient.
//   - Import fitAuth, credstore, or apiclient (no upward imports).
package session
