package services

import (
	"time"

	"github.com/ekaya-inc/relayscout/pkg/models"
)

// MetricsRecorder receives service-level counters. Implemented by
// metrics.Collector; NopMetrics discards everything.
type MetricsRecorder interface {
	RecordSessionStart()
	RecordSessionStop(reason models.StopReason)
	RecordVerification(outcome string, elapsed time.Duration)
	AddSubscriptions(delta int)
	SetRegisteredRelays(n int)
}

// NopMetrics is a MetricsRecorder that records nothing.
type NopMetrics struct{}

func (NopMetrics) RecordSessionStart()                      {}
func (NopMetrics) RecordSessionStop(models.StopReason)      {}
func (NopMetrics) RecordVerification(string, time.Duration) {}
func (NopMetrics) AddSubscriptions(int)                     {}
func (NopMetrics) SetRegisteredRelays(int)                  {}

func metricsOrNop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return NopMetrics{}
	}
	return m
}
