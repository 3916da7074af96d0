package models

import "github.com/customeros/mailprobe/internal/enum"

type CircuitBreakerMetrics struct {
	Status                  enum.CircuitStatus `json:"status"`
	ConsecutiveSMTPTimeouts int64              `json:"consecutive_smtp_timeouts"`
	TotalTimeouts           int64              `json:"total_timeouts"`
	TotalDNSFallbacks       int64              `json:"total_dns_fallbacks"`
	LastTimeout             string             `json:"last_timeout,omitempty"`
	TimeoutThreshold        int64              `json:"timeout_threshold"`
}
