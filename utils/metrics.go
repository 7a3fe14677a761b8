package utils

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// kindCarrier ошибка, которая знает свой код (apperrors.Error)
type kindCarrier interface {
	error
	KindString() string
}

// Metrics содержит метрики приложения
type Metrics struct {
	mu sync.RWMutex

	// Метрики запросов
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Метрики операций ядра
	Operations       map[string]int64
	FailedOperations map[string]int64

	// Метрики карт
	CardEvents        map[string]int64
	LastCardOperation time.Time

	// Метрики переводов
	Transfers      int64
	TransferVolume decimal.Decimal

	// Метрики ошибок
	ErrorCount    int64
	LastErrorTime time.Time
	ErrorTypes    map[string]int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics возвращает экземпляр метрик
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		Operations:       make(map[string]int64),
		FailedOperations: make(map[string]int64),
		CardEvents:       make(map[string]int64),
		ErrorTypes:       make(map[string]int64),
	}
}

// RecordRequest записывает метрики HTTP-запроса
func (m *Metrics) RecordRequest(duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()
	if failed {
		m.FailedRequests++
	}
}

// RecordOperation записывает результат операции ядра
func (m *Metrics) RecordOperation(operation string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Operations[operation]++
	if err != nil {
		m.FailedOperations[operation]++
		m.recordErrorLocked(err)
	}
}

// RecordCardEvent записывает переход карты: create, confirm, reject, expire, renew, block, unblock
func (m *Metrics) RecordCardEvent(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CardEvents[event]++
	m.LastCardOperation = time.Now()
}

// RecordTransfer учитывает завершенный перевод
func (m *Metrics) RecordTransfer(amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Transfers++
	m.TransferVolume = m.TransferVolume.Add(amount)
}

// RecordError записывает метрики ошибки
func (m *Metrics) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordErrorLocked(err)
}

// recordErrorLocked вызывается под m.mu
func (m *Metrics) recordErrorLocked(err error) {
	m.ErrorCount++
	m.LastErrorTime = time.Now()

	errorType := "unknown"
	var kc kindCarrier
	if errors.As(err, &kc) {
		errorType = kc.KindString()
	}
	m.ErrorTypes[errorType]++
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"total_requests":    m.TotalRequests,
		"failed_requests":   m.FailedRequests,
		"average_latency":   m.AverageLatency.String(),
		"operations":        copyCounts(m.Operations),
		"failed_operations": copyCounts(m.FailedOperations),
		"card_events":       copyCounts(m.CardEvents),
		"transfers":         m.Transfers,
		"transfer_volume":   m.TransferVolume.StringFixed(2),
		"error_count":       m.ErrorCount,
		"last_error_time":   m.LastErrorTime,
		"error_types":       copyCounts(m.ErrorTypes),
	}
}

// ResetMetrics сбрасывает все метрики
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := newMetrics()
	m.TotalRequests = 0
	m.FailedRequests = 0
	m.RequestLatency = 0
	m.AverageLatency = 0
	m.LastRequestTime = time.Time{}
	m.Operations = fresh.Operations
	m.FailedOperations = fresh.FailedOperations
	m.CardEvents = fresh.CardEvents
	m.LastCardOperation = time.Time{}
	m.Transfers = 0
	m.TransferVolume = decimal.Zero
	m.ErrorCount = 0
	m.LastErrorTime = time.Time{}
	m.ErrorTypes = fresh.ErrorTypes
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
