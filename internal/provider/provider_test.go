package provider

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/jwhan/csvlingo/pkg/errors"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		message string
		want    errors.ErrorClass
	}{
		{"unauthorized", 401, "invalid api key", errors.ClassAuthFailed},
		{"forbidden", 403, "permission denied", errors.ClassAuthFailed},
		{"payment required", 402, "payment required", errors.ClassQuotaExceeded},
		{"rate limited", 429, "rate limit exceeded, please slow down", errors.ClassRateLimited},
		{"quota exhausted", 429, "you exceeded your current quota, check billing", errors.ClassQuotaExceeded},
		{"bad request", 400, "invalid request", errors.ClassBadRequest},
		{"not found model", 404, "model not found", errors.ClassBadRequest},
		{"request timeout", 408, "request timeout", errors.ClassTimeout},
		{"server error", 500, "internal error", errors.ClassServer},
		{"overloaded", 503, "model is overloaded", errors.ClassServer},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyStatus("Test", tc.status, tc.message, nil)
			if err.Class != tc.want {
				t.Errorf("status %d: got class %s, want %s", tc.status, err.Class, tc.want)
			}
			if err.StatusCode != tc.status {
				t.Errorf("status code not preserved: got %d", err.StatusCode)
			}
		})
	}
}

func TestClassifyStatusRetryAfterHint(t *testing.T) {
	err := classifyStatus("Test", 429, `rate limited, "retryDelay":"7s"`, nil)
	if err.Class != errors.ClassRateLimited {
		t.Fatalf("expected rate limited, got %s", err.Class)
	}
	if err.RetryAfter != 7*time.Second {
		t.Errorf("expected 7s retry hint, got %v", err.RetryAfter)
	}
}

func TestClassifyTransportStatusInMessage(t *testing.T) {
	err := classifyTransport("Test", fmt.Errorf("unexpected response: 503 Service Unavailable"))
	var te *errors.TranslateError
	if !stderrors.As(err, &te) {
		t.Fatalf("expected TranslateError, got %T", err)
	}
	if te.Class != errors.ClassServer {
		t.Errorf("expected server class, got %s", te.Class)
	}
}

func TestClassifyTransportPlainNetworkError(t *testing.T) {
	err := classifyTransport("Test", fmt.Errorf("connection refused"))
	if errors.ClassOf(err) != errors.ClassNetwork {
		t.Errorf("expected network class, got %s", errors.ClassOf(err))
	}
}

func TestParseRetryDelay(t *testing.T) {
	cases := []struct {
		message string
		want    time.Duration
	}{
		{`"retryDelay":"30s"`, 30 * time.Second},
		{`Retry-After: 12s`, 12 * time.Second},
		{`retry after 2.5 s`, 2500 * time.Millisecond},
		{`no hint here`, 0},
	}

	for _, tc := range cases {
		if got := parseRetryDelay(tc.message); got != tc.want {
			t.Errorf("parseRetryDelay(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}
}

func TestCleanResponse(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hola", "hola"},
		{"  hola \n", "hola"},
		{"```\nhola\n```", "hola"},
		{"```text\nhola\n```", "hola"},
	}

	for _, tc := range cases {
		if got := cleanResponse(tc.in); got != tc.want {
			t.Errorf("cleanResponse(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
