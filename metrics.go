package authgate

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected logins.
	MetricLoginFailure
	// MetricRefreshSuccess counts successful token rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricLogout counts revocations via Logout.
	MetricLogout
	// MetricAuthenticateAllowed counts admitted requests.
	MetricAuthenticateAllowed
	// MetricAuthenticateDenied counts denied requests, including fail-closed
	// denials on cache outage.
	MetricAuthenticateDenied
	// MetricRevokedTokenSeen counts requests presenting a revoked token.
	MetricRevokedTokenSeen
	// MetricResetRequest counts password reset handles issued.
	MetricResetRequest
	// MetricResetRateLimited counts reset requests inside the cool-down.
	MetricResetRateLimited
	// MetricResetConfirmSuccess counts completed password resets.
	MetricResetConfirmSuccess
	// MetricResetConfirmFailure counts rejected password resets.
	MetricResetConfirmFailure
	// MetricRegisterSuccess counts accounts created.
	MetricRegisterSuccess
	// MetricRegisterDuplicate counts duplicate registration attempts.
	MetricRegisterDuplicate
	// MetricVerifySuccess counts email confirmations.
	MetricVerifySuccess
	// MetricVerifyFailure counts rejected email confirmations.
	MetricVerifyFailure

	metricIDCount
)

type paddedCounter struct {
	value uint64
	_     [56]byte // avoid false sharing between adjacent counters
}

// Metrics is a fixed-size atomic counter registry. A disabled registry makes
// every operation a no-op.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snapshot := MetricsSnapshot{
		Counters: map[MetricID]uint64{},
	}
	if m == nil || !m.enabled {
		return snapshot
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snapshot.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snapshot
}
