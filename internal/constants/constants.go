package constants

import "time"

var BatchConfig = struct {
	DefaultSize     int
	MinSize         int
	MaxSize         int
	InterBatchDelay time.Duration
	Timeout         time.Duration
}{
	DefaultSize:     25,
	MinSize:         1,
	MaxSize:         200,
	InterBatchDelay: 500 * time.Millisecond,
	Timeout:         5 * time.Minute, // per-batch deadline; 0 disables
}

var RetryConfig = struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Jitter         time.Duration
	RateLimitDelay time.Duration
}{
	MaxAttempts:    3,
	BaseDelay:      500 * time.Millisecond,
	Jitter:         250 * time.Millisecond,
	RateLimitDelay: 10 * time.Second, // used when the provider gives no retry-after hint
}

var ProviderConfig = struct {
	CallTimeout   time.Duration
	MaxTextLength int
	Concurrency   int
}{
	CallTimeout:   30 * time.Second,
	MaxTextLength: 50000,
	Concurrency:   4,
}

var CircuitBreakerConfig = struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	RateLimitTimeout    time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}{
	FailureThreshold:    3,
	ResetTimeout:        30 * time.Second,
	RateLimitTimeout:    1 * time.Hour,
	HealthCheckInterval: 10 * time.Minute,
	HealthCheckTimeout:  10 * time.Second,
}

var CacheTTL = struct {
	TranslationMemo time.Duration
	RunCounter      time.Duration
}{
	TranslationMemo: 7 * 24 * time.Hour,
	RunCounter:      1 * time.Hour,
}

var ServerConfig = struct {
	MaxUploadBytes     int64
	MaxConcurrentRuns  int
	MaxRunsPerClient   int64 // per RunCounter TTL window
	JobEventBuffer     int
	JobRetention       time.Duration
	PruneInterval      time.Duration
	ShutdownTimeout    time.Duration
	WriteTimeout       time.Duration
	HistoryQueryLimit  int
}{
	MaxUploadBytes:     32 << 20, // 32 MiB
	MaxConcurrentRuns:  3,
	MaxRunsPerClient:   30,
	JobEventBuffer:     1000,
	JobRetention:       1 * time.Hour,
	PruneInterval:      10 * time.Minute,
	ShutdownTimeout:    10 * time.Second,
	WriteTimeout:       10 * time.Second,
	HistoryQueryLimit:  50,
}

var StringLimits = struct {
	ErrorPreview   int
	ProgressDetail int
}{
	ErrorPreview:   200,
	ProgressDetail: 500,
}
