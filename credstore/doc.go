// Package credstore persists the serializable fields of a session.Session under a
// fixed set of namespaced keys and reads them back all-or-nothing.
//
// # Keys
//
//	<prefix>:token
//	<prefix>:refresh_token
//	<prefix>:role
//	<prefix>:profile
//
// All four keys are written in one batch by [Store.Save] (an absent refresh token
// is stored as an empty string) and removed in one batch by [Store.Clear].
// [Store.Load] reports a session only when all four are present and well formed.
//
// # Backends
//
// [Store] runs on any [KV]. [MemoryKV] is process-local, [RedisKV] shares
// credentials between processes on one device through Redis, and [FileKV] keeps
// them in a YAML file for terminal clients.
package credstore
