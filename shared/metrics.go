package shared

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const maxDurationSamples = 1000

// ServiceMetrics tracks run counts, timings and custom counters for a service
type ServiceMetrics struct {
	serviceName        string
	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	totalProcessing    time.Duration
	minProcessing      time.Duration
	maxProcessing      time.Duration
	samples            []time.Duration
	lastError          string
	lastUpdated        time.Time
	customCounters     map[string]int64
	mutex              sync.RWMutex
}

// MetricsSnapshot is a point-in-time copy of ServiceMetrics safe to serialize
type MetricsSnapshot struct {
	ServiceName           string           `json:"service_name"`
	TotalRequests         int64            `json:"total_requests"`
	SuccessfulRequests    int64            `json:"successful_requests"`
	FailedRequests        int64            `json:"failed_requests"`
	SuccessRate           float64          `json:"success_rate"`
	AverageProcessingTime string           `json:"average_processing_time"`
	MinProcessingTime     string           `json:"min_processing_time"`
	MaxProcessingTime     string           `json:"max_processing_time"`
	P95ProcessingTime     string           `json:"p95_processing_time"`
	LastError             string           `json:"last_error,omitempty"`
	LastUpdated           time.Time        `json:"last_updated"`
	CustomCounters        map[string]int64 `json:"custom_counters"`
}

// NewServiceMetrics creates a new metrics tracker for a service
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	return &ServiceMetrics{
		serviceName:    serviceName,
		lastUpdated:    time.Now(),
		samples:        make([]time.Duration, 0, 64),
		customCounters: make(map[string]int64),
	}
}

// RecordRequest records a run with its outcome and processing time
func (m *ServiceMetrics) RecordRequest(err error, processingTime time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalRequests++
	m.totalProcessing += processingTime
	if err == nil {
		m.successfulRequests++
	} else {
		m.failedRequests++
		m.lastError = err.Error()
	}

	if m.minProcessing == 0 || processingTime < m.minProcessing {
		m.minProcessing = processingTime
	}
	if processingTime > m.maxProcessing {
		m.maxProcessing = processingTime
	}
	if len(m.samples) >= maxDurationSamples {
		m.samples = m.samples[1:]
	}
	m.samples = append(m.samples, processingTime)
	m.lastUpdated = time.Now()
}

// AddCustomCounter adds delta to a named counter
func (m *ServiceMetrics) AddCustomCounter(key string, delta int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.customCounters[key] += delta
	m.lastUpdated = time.Now()
}

// Snapshot returns a thread-safe copy of the current metrics
func (m *ServiceMetrics) Snapshot() MetricsSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	counters := make(map[string]int64, len(m.customCounters))
	for k, v := range m.customCounters {
		counters[k] = v
	}

	snap := MetricsSnapshot{
		ServiceName:        m.serviceName,
		TotalRequests:      m.totalRequests,
		SuccessfulRequests: m.successfulRequests,
		FailedRequests:     m.failedRequests,
		MinProcessingTime:  m.minProcessing.String(),
		MaxProcessingTime:  m.maxProcessing.String(),
		P95ProcessingTime:  percentile(m.samples, 0.95).String(),
		LastError:          m.lastError,
		LastUpdated:        m.lastUpdated,
		CustomCounters:     counters,
	}
	if m.totalRequests > 0 {
		snap.SuccessRate = float64(m.successfulRequests) / float64(m.totalRequests) * 100.0
		snap.AverageProcessingTime = (m.totalProcessing / time.Duration(m.totalRequests)).String()
	} else {
		snap.AverageProcessingTime = time.Duration(0).String()
	}
	return snap
}

// LogSummary logs a metrics summary
func (m *ServiceMetrics) LogSummary() {
	snapshot := m.Snapshot()
	logrus.WithFields(logrus.Fields{
		"service_name":            snapshot.ServiceName,
		"total_requests":          snapshot.TotalRequests,
		"successful_requests":     snapshot.SuccessfulRequests,
		"failed_requests":         snapshot.FailedRequests,
		"success_rate":            snapshot.SuccessRate,
		"average_processing_time": snapshot.AverageProcessingTime,
		"p95_processing_time":     snapshot.P95ProcessingTime,
		"custom_counters":         snapshot.CustomCounters,
	}).Info("Service metrics summary")
}

func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
