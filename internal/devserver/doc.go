// Package devserver is a reference backend for the fitness coaching API,
// used by the terminal client and by end-to-end tests.
//
// It implements the auth endpoints the client talks to (login, register,
// logout), two authenticated resources (/me and /workouts) and a development
// endpoint that revokes sessions so a client sees its next request rejected
// with 401.
//
// Users, sessions and workouts live in memory. Passwords are hashed with
// Argon2id and access tokens are HS256 JWTs bound to a server-side session ID.
package devserver
