// Package provider binds the translation capability to concrete AI backends.
package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jwhan/csvlingo/pkg/errors"
)

// Translator is the single capability the pipeline consumes. Implementations
// must be safe for concurrent use and return classified TranslateErrors.
type Translator interface {
	Name() string
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	Ping(ctx context.Context) bool
}

// buildPrompt produces the instruction sent to the model for one cell.
// Cell values are short user data fields, so the contract is strict: output
// the translation and nothing else.
func buildPrompt(text, sourceLang, targetLang string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following text from %s to %s.\n", sourceLang, targetLang)
	b.WriteString("Rules:\n")
	b.WriteString("- Output ONLY the translated text, no quotes, no explanations.\n")
	b.WriteString("- Preserve numbers, URLs, email addresses, product codes and placeholders exactly.\n")
	b.WriteString("- If the text is already in the target language, return it unchanged.\n\n")
	b.WriteString("Text:\n")
	b.WriteString(text)
	return b.String()
}

// cleanResponse strips markdown fences and surrounding whitespace some models
// wrap around plain-text answers.
func cleanResponse(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.Index(cleaned, "\n"); idx >= 0 && !strings.ContainsAny(cleaned[:idx], " \t") {
			// Drop a language tag on the opening fence.
			cleaned = cleaned[idx+1:]
		}
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}

var (
	statusCodeInMessage = regexp.MustCompile(`\b([1-5]\d{2})\b`)
	retryDelayPattern   = regexp.MustCompile(`(?i)retry.?(?:after|delay)\D{0,4}(\d+(?:\.\d+)?)\s*s`)
	quotaPattern        = regexp.MustCompile(`(?i)quota|billing|RESOURCE_EXHAUSTED.*quota`)
)

// classifyStatus maps an HTTP status (plus message context) to the error
// taxonomy the pipeline retries against.
func classifyStatus(provider string, status int, message string, cause error) *errors.TranslateError {
	wrap := func(class errors.ErrorClass) *errors.TranslateError {
		te := errors.NewTranslateError(
			fmt.Sprintf("%s translation failed", provider), class, status,
		).WithCause(cause)
		if class == errors.ClassRateLimited {
			if d := parseRetryDelay(message); d > 0 {
				te = te.WithRetryAfter(d)
			}
		}
		return te
	}

	switch {
	case status == 401 || status == 403:
		return wrap(errors.ClassAuthFailed)
	case status == 402:
		return wrap(errors.ClassQuotaExceeded)
	case status == 429:
		if quotaPattern.MatchString(message) && !strings.Contains(strings.ToLower(message), "rate") {
			return wrap(errors.ClassQuotaExceeded)
		}
		return wrap(errors.ClassRateLimited)
	case status == 408:
		return wrap(errors.ClassTimeout)
	case status >= 400 && status < 500:
		return wrap(errors.ClassBadRequest)
	case status >= 500:
		return wrap(errors.ClassServer)
	default:
		return wrap(errors.ClassNetwork)
	}
}

// classifyTransport handles failures that never produced an HTTP status.
func classifyTransport(provider string, err error) *errors.TranslateError {
	msg := err.Error()

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTranslateError(
			fmt.Sprintf("%s call timed out", provider), errors.ClassTimeout, 0,
		).WithCause(err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.NewTranslateError(
			fmt.Sprintf("%s call timed out", provider), errors.ClassTimeout, 0,
		).WithCause(err)
	}

	// Some SDKs only expose the status through the message.
	if matches := statusCodeInMessage.FindStringSubmatch(msg); len(matches) > 1 {
		if code, convErr := strconv.Atoi(matches[1]); convErr == nil && code >= 400 {
			return classifyStatus(provider, code, msg, err)
		}
	}

	return errors.NewTranslateError(
		fmt.Sprintf("%s request failed", provider), errors.ClassNetwork, 0,
	).WithCause(err)
}

// parseRetryDelay extracts a server retry hint ("retryDelay":"7s",
// "Retry-After: 30s") from an error message.
func parseRetryDelay(message string) time.Duration {
	matches := retryDelayPattern.FindStringSubmatch(message)
	if len(matches) < 2 {
		return 0
	}
	seconds, err := strconv.ParseFloat(matches[1], 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
