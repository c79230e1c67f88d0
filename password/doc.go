// Package password hashes and verifies the dev backend's account passwords
// with Argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The client never hashes anything; only internal/devserver imports this
// package.
package password
