// Package audit records session lifecycle events (restore, login, register,
// logout, forced logout) off the caller's goroutine.
//
// The state machine and logout coordinator decide what to record; this
// package only queues and delivers. Flush lets a caller that just finished a
// logout sequence wait until its events reached the sink.
//
// Events never carry tokens or passwords.
package audit
