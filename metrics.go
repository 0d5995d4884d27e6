package authcore

import "sync/atomic"

// MetricID indexes one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricLogout
	MetricLogoutAll
	MetricSessionCreated
	MetricSessionRevoked
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	metricIDCount
)

// MetricName returns the stable export name of a counter, empty for unknown
// IDs.
func MetricName(id MetricID) string {
	switch id {
	case MetricLoginSuccess:
		return "authcore_login_success_total"
	case MetricLoginFailure:
		return "authcore_login_failure_total"
	case MetricLoginLocked:
		return "authcore_login_locked_total"
	case MetricRefreshSuccess:
		return "authcore_refresh_success_total"
	case MetricRefreshFailure:
		return "authcore_refresh_failure_total"
	case MetricRefreshReuseDetected:
		return "authcore_refresh_reuse_detected_total"
	case MetricLogout:
		return "authcore_logout_total"
	case MetricLogoutAll:
		return "authcore_logout_all_total"
	case MetricSessionCreated:
		return "authcore_session_created_total"
	case MetricSessionRevoked:
		return "authcore_session_revoked_total"
	case MetricRegisterSuccess:
		return "authcore_register_success_total"
	case MetricRegisterDuplicate:
		return "authcore_register_duplicate_total"
	case MetricPasswordResetRequest:
		return "authcore_password_reset_request_total"
	case MetricPasswordResetConfirmSuccess:
		return "authcore_password_reset_confirm_success_total"
	case MetricPasswordResetConfirmFailure:
		return "authcore_password_reset_confirm_failure_total"
	default:
		return ""
	}
}

// MetricIDs returns every counter ID in export order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, metricIDCount)
	for id := MetricID(0); id < metricIDCount; id++ {
		ids = append(ids, id)
	}
	return ids
}

const cacheLineSize = 64

type paddedCounter struct {
	value atomic.Uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free per-operation counters. The write path is
// allocation-free; Snapshot copies all values at once.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// NewMetrics returns a counter set. When disabled, Inc is a no-op and
// Snapshot returns an empty map.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are being collected.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to a counter.
func (m *Metrics) Add(id MetricID, n uint64) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].value.Add(n)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if !m.Enabled() {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].value.Load()
	}
	return snap
}
