package models

import "time"

// MetricsSnapshot is the JSON view of the in-process counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	Decisions                uint64    `json:"decisions"`
	BatchesForwarded         uint64    `json:"batchesForwarded"`
	PaymentsConfirmed        uint64    `json:"paymentsConfirmed"`
	NotificationsSent        uint64    `json:"notificationsSent"`
	MailFailures             uint64    `json:"mailFailures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
