package provider

import (
	"context"
	"fmt"

	"github.com/jwhan/csvlingo/internal/constants"
	"github.com/jwhan/csvlingo/internal/util"
	"github.com/jwhan/csvlingo/pkg/errors"
	"go.uber.org/zap"
)

// Manager selects between the configured providers: Gemini is primary when
// available, OpenAI serves as fallback (or primary when it is the only one).
// A shared circuit breaker stops issuing calls while the backends are down.
type Manager struct {
	gemini         *GeminiTranslator
	openai         *OpenAITranslator
	primary        Translator
	fallback       Translator
	logger         *zap.Logger
	enableFallback bool
	circuitBreaker *util.CircuitBreaker
}

type ManagerConfig struct {
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIModel    string
	EnableFallback bool
}

func NewManager(ctx context.Context, cfg ManagerConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{logger: logger}

	if cfg.GeminiAPIKey != "" {
		gemini, err := NewGeminiTranslator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			return nil, err
		}
		m.gemini = gemini
		m.primary = gemini
	}

	m.openai = NewOpenAITranslator(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)
	if m.primary == nil && m.openai != nil {
		m.primary = m.openai
		logger.Info("OpenAI configured as primary translator", zap.String("model", cfg.OpenAIModel))
	} else if m.openai != nil && cfg.EnableFallback {
		m.fallback = m.openai
		m.enableFallback = true
		logger.Info("OpenAI fallback enabled", zap.String("model", cfg.OpenAIModel))
	} else {
		logger.Info("OpenAI fallback disabled")
	}

	if m.primary == nil {
		return nil, fmt.Errorf("no translation provider configured")
	}

	m.circuitBreaker = util.NewCircuitBreaker(
		constants.CircuitBreakerConfig.FailureThreshold,
		constants.CircuitBreakerConfig.ResetTimeout,
		constants.CircuitBreakerConfig.HealthCheckInterval,
		m.healthCheckPing,
		logger,
	)

	return m, nil
}

func (m *Manager) Name() string {
	return m.primary.Name()
}

// Translate routes one cell through primary then fallback. Run-fatal errors
// (auth, quota, bad request) are returned immediately without burning the
// fallback or the circuit budget.
func (m *Manager) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if !m.circuitBreaker.CanExecute() {
		status := m.circuitBreaker.GetStatus()
		m.logger.Warn("Translation skipped (circuit open)",
			zap.String("state", status.State.String()),
			zap.Int("failure_count", status.FailureCount),
		)
		return "", errors.NewTranslateError(
			"translation providers unavailable (circuit open)", errors.ClassServer, 0,
		)
	}

	result, primaryErr := m.primary.Translate(ctx, text, sourceLang, targetLang)
	if primaryErr == nil {
		m.circuitBreaker.RecordSuccess()
		return result, nil
	}

	if errors.IsRunFatal(primaryErr) {
		return "", primaryErr
	}

	m.recordFailure(primaryErr)

	if m.enableFallback && m.fallback != nil {
		m.logger.Info("Falling back to secondary provider",
			zap.String("primary", m.primary.Name()),
			zap.String("fallback", m.fallback.Name()),
			zap.Error(primaryErr),
		)

		result, fallbackErr := m.fallback.Translate(ctx, text, sourceLang, targetLang)
		if fallbackErr == nil {
			m.circuitBreaker.RecordSuccess()
			return result, nil
		}

		if errors.IsRunFatal(fallbackErr) {
			return "", fallbackErr
		}

		m.recordFailure(fallbackErr)
		return "", fallbackErr
	}

	return "", primaryErr
}

func (m *Manager) Ping(ctx context.Context) bool {
	return m.healthCheckPing()
}

func (m *Manager) recordFailure(err error) {
	timeout := constants.CircuitBreakerConfig.ResetTimeout
	if errors.ClassOf(err) == errors.ClassRateLimited {
		timeout = constants.CircuitBreakerConfig.RateLimitTimeout
		if hinted := errors.RetryAfterOf(err); hinted > 0 {
			timeout = hinted
		}
	}
	m.circuitBreaker.RecordFailure(timeout)
}

func (m *Manager) healthCheckPing() bool {
	m.logger.Info("Health Check: Testing translation providers...")

	ctx, cancel := context.WithTimeout(context.Background(), constants.CircuitBreakerConfig.HealthCheckTimeout)
	defer cancel()

	geminiOK := false
	if m.gemini != nil {
		geminiOK = m.gemini.Ping(ctx)
	}

	openaiOK := false
	if m.openai != nil {
		openaiOK = m.openai.Ping(ctx)
	}

	healthy := geminiOK || openaiOK

	m.logger.Info("Health Check: Result",
		zap.Bool("gemini", geminiOK),
		zap.Bool("openai", openaiOK),
		zap.Bool("healthy", healthy),
	)

	return healthy
}

// GetCircuitStatus exposes breaker state for diagnostics endpoints.
func (m *Manager) GetCircuitStatus() util.CircuitBreakerStatus {
	return m.circuitBreaker.GetStatus()
}

func (m *Manager) ResetCircuit() {
	m.circuitBreaker.Reset()
}

var _ Translator = (*Manager)(nil)
