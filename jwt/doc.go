// Package jwt issues and verifies fitAuth access tokens, and inspects tokens held
// by a client without verifying them.
//
// [Manager] is used by the reference backend (internal/devserver) to sign and
// verify tokens. [Inspect] is used on the client during restore: it reads the
// "exp" claim of a stored token so a session that is already expired is not
// presented as authenticated. Inspection never establishes trust; the backend
// remains the authority and answers 401 for tokens it rejects.
package jwt
