package config

import "time"

// Tunables holds every configurable timeout and threshold governing
// the supervisor, sinks, and monitor loops, with sensible defaults.
type Tunables struct {
	QueueTimeout            time.Duration
	HealthCheckTimeout      time.Duration
	MaxHealthFailures       int
	ProcessJoinTimeout      time.Duration
	TerminationGracePeriod  time.Duration
	ResponseRetries         int
	HealthCheckInterval     time.Duration
	WarmPoolSize            int
	WarmPoolInterval        time.Duration

	MonitorPollInterval     time.Duration
	MonitorBatchSize        int
	MonitorFlushInterval    time.Duration
	MonitorSemaphoreWeight  int64
	ResultsMaxDays          int
	CleanupInterval         time.Duration
	MaxSizeGB               float64
	SizeCheckInterval       time.Duration
	MaxBackgroundWorkers    int

	ConsumptionTimeout      time.Duration

	ProcessingTimeout       time.Duration
	MaxConsecutiveTimeouts  int
	MinConsecutiveOnTime    int
}

func Defaults() Tunables {
	return Tunables{
		QueueTimeout:           10 * time.Second,
		HealthCheckTimeout:     5 * time.Second,
		MaxHealthFailures:      3,
		ProcessJoinTimeout:     30 * time.Second,
		TerminationGracePeriod: 5 * time.Second,
		ResponseRetries:        3,
		HealthCheckInterval:    1 * time.Second,
		WarmPoolSize:           0,
		WarmPoolInterval:       1 * time.Second,

		MonitorPollInterval:    100 * time.Millisecond,
		MonitorBatchSize:       100,
		MonitorFlushInterval:   1 * time.Second,
		MonitorSemaphoreWeight: 10,
		ResultsMaxDays:         7,
		CleanupInterval:        1 * time.Hour,
		MaxSizeGB:              10,
		SizeCheckInterval:      1 * time.Minute,
		MaxBackgroundWorkers:   5,

		ConsumptionTimeout: 30 * time.Second,

		ProcessingTimeout:      100 * time.Millisecond,
		MaxConsecutiveTimeouts: 30,
		MinConsecutiveOnTime:   5,
	}
}
