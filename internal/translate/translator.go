package translate

import (
	"context"
	"math/rand"
	"time"

	"github.com/jwhan/csvlingo/internal/constants"
	"github.com/jwhan/csvlingo/internal/provider"
	"github.com/jwhan/csvlingo/internal/util"
	"github.com/jwhan/csvlingo/pkg/errors"
	"go.uber.org/zap"
)

// Memo is an optional cross-run cache for translated cells. Implementations
// must treat lookups as best-effort; a failure is just a miss.
type Memo interface {
	GetTranslation(ctx context.Context, sourceLang, targetLang, text string) (string, bool)
	SetTranslation(ctx context.Context, sourceLang, targetLang, text, translated string)
}

// CellTranslator wraps the provider with the per-cell policy: blank
// short-circuit, length guard, per-call timeout, retry with backoff, and
// degrade-to-original when retries are exhausted. Run-fatal failures (auth,
// quota, bad request) are the only errors it returns. Safe for concurrent use.
type CellTranslator struct {
	provider       provider.Translator
	memo           Memo
	logger         *zap.Logger
	maxAttempts    int
	baseDelay      time.Duration
	jitter         time.Duration
	rateLimitDelay time.Duration
	callTimeout    time.Duration
	maxTextLength  int
}

type CellTranslatorOptions struct {
	MaxAttempts    int
	CallTimeout    time.Duration
	MaxTextLength  int
	BaseDelay      time.Duration
	Jitter         time.Duration
	RateLimitDelay time.Duration
}

func NewCellTranslator(p provider.Translator, memo Memo, opts CellTranslatorOptions, logger *zap.Logger) *CellTranslator {
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = constants.RetryConfig.MaxAttempts
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = constants.ProviderConfig.CallTimeout
	}
	maxTextLength := opts.MaxTextLength
	if maxTextLength <= 0 {
		maxTextLength = constants.ProviderConfig.MaxTextLength
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = constants.RetryConfig.BaseDelay
	}
	jitter := opts.Jitter
	if jitter < 0 {
		jitter = constants.RetryConfig.Jitter
	}
	rateLimitDelay := opts.RateLimitDelay
	if rateLimitDelay <= 0 {
		rateLimitDelay = constants.RetryConfig.RateLimitDelay
	}

	return &CellTranslator{
		provider:       p,
		memo:           memo,
		logger:         logger,
		maxAttempts:    maxAttempts,
		baseDelay:      baseDelay,
		jitter:         jitter,
		rateLimitDelay: rateLimitDelay,
		callTimeout:    callTimeout,
		maxTextLength:  maxTextLength,
	}
}

// TranslateCell translates one cell. The second return value reports whether
// the cell degraded to its original text (retries exhausted or cancellation).
// A non-nil error is always run-fatal.
func (t *CellTranslator) TranslateCell(ctx context.Context, text, sourceLang, targetLang string) (string, bool, error) {
	if util.IsBlank(text) {
		return text, false, nil
	}

	if len(text) > t.maxTextLength {
		return "", false, errors.NewTranslateError(
			"cell text exceeds provider limit", errors.ClassBadRequest, 0,
		).WithContext(map[string]any{
			"length": len(text),
			"limit":  t.maxTextLength,
		})
	}

	if t.memo != nil {
		if cached, ok := t.memo.GetTranslation(ctx, sourceLang, targetLang, text); ok {
			return cached, false, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			// Run canceled or batch deadline hit; keep the original text.
			return text, true, nil
		}

		callCtx, cancel := context.WithTimeout(ctx, t.callTimeout)
		translated, err := t.provider.Translate(callCtx, text, sourceLang, targetLang)
		cancel()

		if err == nil {
			if t.memo != nil {
				t.memo.SetTranslation(ctx, sourceLang, targetLang, text, translated)
			}
			return translated, false, nil
		}

		lastErr = err

		if errors.IsRunFatal(err) {
			return "", false, err
		}

		if attempt == t.maxAttempts {
			break
		}

		if !t.sleep(ctx, t.retryDelay(err, attempt)) {
			return text, true, nil
		}
	}

	t.logger.Warn("Cell translation degraded to original text",
		zap.Int("attempts", t.maxAttempts),
		zap.Int("text_length", len(text)),
		zap.Error(lastErr),
	)

	return text, true, nil
}

// retryDelay picks the wait before the next attempt: rate limits honor the
// server hint (or a long fixed delay), everything else backs off
// exponentially with jitter.
func (t *CellTranslator) retryDelay(err error, attempt int) time.Duration {
	if errors.ClassOf(err) == errors.ClassRateLimited {
		if hinted := errors.RetryAfterOf(err); hinted > 0 {
			return hinted
		}
		return t.rateLimitDelay
	}

	delay := t.baseDelay << (attempt - 1)
	if t.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(t.jitter)))
	}
	return delay
}

// sleep waits for d, returning false when the context is canceled first.
func (t *CellTranslator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
