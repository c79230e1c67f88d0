package internaldefs

import (
	fitAuth "github.com/MrEthical07/fitAuth"
)

// Label is one name="value" pair on a series.
type Label struct {
	Key   string
	Value string
}

// Series binds one counter ID to its labels within a family.
type Series struct {
	ID     fitAuth.MetricID
	Labels []Label
}

// CounterFamily is one exported counter name and its series.
type CounterFamily struct {
	Name   string
	Help   string
	Series []Series
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   fitAuth.MetricID
	Name string
	Help string
}

func one(id fitAuth.MetricID) []Series {
	return []Series{{ID: id}}
}

// CounterFamilies lists every counter family in export order.
var CounterFamilies = []CounterFamily{
	{
		Name: "fitauth_auth_attempts_total",
		Help: "Login and registration attempts by outcome.",
		Series: []Series{
			{ID: fitAuth.MetricLoginSuccess, Labels: []Label{{"op", "login"}, {"result", "success"}}},
			{ID: fitAuth.MetricLoginFailure, Labels: []Label{{"op", "login"}, {"result", "failure"}}},
			{ID: fitAuth.MetricRegisterSuccess, Labels: []Label{{"op", "register"}, {"result", "success"}}},
			{ID: fitAuth.MetricRegisterFailure, Labels: []Label{{"op", "register"}, {"result", "failure"}}},
		},
	},
	{
		Name: "fitauth_restore_total",
		Help: "Startup restores by whether a usable session was found.",
		Series: []Series{
			{ID: fitAuth.MetricRestoreHit, Labels: []Label{{"result", "hit"}}},
			{ID: fitAuth.MetricRestoreMiss, Labels: []Label{{"result", "miss"}}},
		},
	},
	{
		Name:   "fitauth_restore_expired_total",
		Help:   "Restore misses caused by an expired access token.",
		Series: one(fitAuth.MetricRestoreExpired),
	},
	{
		Name:   "fitauth_session_persist_failure_total",
		Help:   "Sessions the credential store failed to write.",
		Series: one(fitAuth.MetricSessionPersistFailure),
	},
	{
		Name:   "fitauth_session_superseded_total",
		Help:   "In-flight results dropped by a logout.",
		Series: one(fitAuth.MetricSessionSuperseded),
	},
	{
		Name:   "fitauth_logout_total",
		Help:   "User-initiated logouts.",
		Series: one(fitAuth.MetricLogout),
	},
	{
		Name:   "fitauth_forced_logout_requests_total",
		Help:   "Forced-logout requests, including suppressed ones.",
		Series: one(fitAuth.MetricForcedLogoutTriggered),
	},
	{
		Name: "fitauth_forced_logout_total",
		Help: "Forced-logout requests by whether the sequence ran.",
		Series: []Series{
			{ID: fitAuth.MetricForcedLogoutExecuted, Labels: []Label{{"outcome", "executed"}}},
			{ID: fitAuth.MetricForcedLogoutSuppressed, Labels: []Label{{"outcome", "suppressed"}}},
		},
	},
	{
		Name:   "fitauth_store_clear_failure_total",
		Help:   "Credential wipes that returned an error.",
		Series: one(fitAuth.MetricStoreClearFailure),
	},
	{
		Name:   "fitauth_navigation_fallback_total",
		Help:   "Logouts that used the fallback redirect.",
		Series: one(fitAuth.MetricNavigationFallback),
	},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: fitAuth.MetricLoginLatency, Name: "fitauth_login_latency_seconds", Help: "Login round trip including persistence."},
}

// AuditDroppedName is the counter for events the audit queue dropped.
const AuditDroppedName = "fitauth_audit_dropped_total"

// StateGaugeName is the one-hot gauge of the current auth state.
const StateGaugeName = "fitauth_auth_state"

// States lists the auth states in gauge order.
var States = []fitAuth.Status{
	fitAuth.StatusUnknown,
	fitAuth.StatusLoading,
	fitAuth.StatusAuthenticated,
	fitAuth.StatusUnauthenticated,
}

// StateValues returns 1 for current and 0 for every other state, in States
// order.
func StateValues(current fitAuth.Status) []int64 {
	out := make([]int64, len(States))
	for i, s := range States {
		if s == current {
			out[i] = 1
		}
	}
	return out
}

// HistogramBounds are the upper bounds of the login latency buckets, in seconds.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling or
// truncating as needed.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
