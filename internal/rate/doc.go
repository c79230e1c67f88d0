// Package rate throttles failed dev-server logins with Redis fixed-window
// counters (INCR, then EXPIRE on the first hit).
//
// Keys are <prefix>:login:<email> and <prefix>:login-ip:<ip>.
package rate
