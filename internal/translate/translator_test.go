package translate

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jwhan/csvlingo/pkg/errors"
	"go.uber.org/zap"
)

// fakeProvider scripts per-call behavior by call number (1-based).
type fakeProvider struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, text string) (string, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Translate(_ context.Context, text, _, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, text)
}

func (f *fakeProvider) Ping(context.Context) bool { return true }

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func upperProvider() *fakeProvider {
	return &fakeProvider{fn: func(_ int, text string) (string, error) {
		return strings.ToUpper(text), nil
	}}
}

type fakeMemo struct {
	mu      sync.Mutex
	entries map[string]string
	hits    int
}

func newFakeMemo() *fakeMemo {
	return &fakeMemo{entries: make(map[string]string)}
}

func (m *fakeMemo) GetTranslation(_ context.Context, src, tgt, text string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[src+"|"+tgt+"|"+text]
	if ok {
		m.hits++
	}
	return v, ok
}

func (m *fakeMemo) SetTranslation(_ context.Context, src, tgt, text, translated string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[src+"|"+tgt+"|"+text] = translated
}

func fastOptions() CellTranslatorOptions {
	return CellTranslatorOptions{
		MaxAttempts:    3,
		CallTimeout:    time.Second,
		BaseDelay:      time.Millisecond,
		RateLimitDelay: time.Millisecond,
	}
}

func TestTranslateCellBlankShortCircuits(t *testing.T) {
	p := upperProvider()
	ct := NewCellTranslator(p, nil, fastOptions(), zap.NewNop())

	for _, text := range []string{"", "   ", "\t\n"} {
		got, degraded, err := ct.TranslateCell(context.Background(), text, "en", "ko")
		if err != nil {
			t.Fatalf("unexpected error for blank cell: %v", err)
		}
		if degraded {
			t.Errorf("blank cell %q marked degraded", text)
		}
		if got != text {
			t.Errorf("blank cell %q rewritten to %q", text, got)
		}
	}

	if p.callCount() != 0 {
		t.Errorf("provider called %d times for blank cells", p.callCount())
	}
}

func TestTranslateCellSuccess(t *testing.T) {
	ct := NewCellTranslator(upperProvider(), nil, fastOptions(), zap.NewNop())

	got, degraded, err := ct.TranslateCell(context.Background(), "hello", "en", "ko")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if degraded {
		t.Error("successful translation marked degraded")
	}
	if got != "HELLO" {
		t.Errorf("got %q, want %q", got, "HELLO")
	}
}

func TestTranslateCellRetriesTransientThenSucceeds(t *testing.T) {
	p := &fakeProvider{fn: func(call int, text string) (string, error) {
		if call < 3 {
			return "", errors.NewTranslateError("upstream hiccup", errors.ClassNetwork, 0)
		}
		return strings.ToUpper(text), nil
	}}
	ct := NewCellTranslator(p, nil, fastOptions(), zap.NewNop())

	got, degraded, err := ct.TranslateCell(context.Background(), "hello", "en", "ko")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if degraded {
		t.Error("recovered translation marked degraded")
	}
	if got != "HELLO" {
		t.Errorf("got %q, want %q", got, "HELLO")
	}
	if p.callCount() != 3 {
		t.Errorf("provider called %d times, want 3", p.callCount())
	}
}

func TestTranslateCellExhaustionDegradesToOriginal(t *testing.T) {
	p := &fakeProvider{fn: func(int, string) (string, error) {
		return "", errors.NewTranslateError("upstream down", errors.ClassServer, 503)
	}}
	ct := NewCellTranslator(p, nil, fastOptions(), zap.NewNop())

	got, degraded, err := ct.TranslateCell(context.Background(), "hello", "en", "ko")
	if err != nil {
		t.Fatalf("exhausted retries must not surface an error, got %v", err)
	}
	if !degraded {
		t.Error("expected degraded result after retry exhaustion")
	}
	if got != "hello" {
		t.Errorf("degraded cell returned %q, want original %q", got, "hello")
	}
	if p.callCount() != 3 {
		t.Errorf("provider called %d times, want 3", p.callCount())
	}
}

func TestTranslateCellRunFatalPropagates(t *testing.T) {
	p := &fakeProvider{fn: func(int, string) (string, error) {
		return "", errors.NewTranslateError("invalid api key", errors.ClassAuthFailed, 401)
	}}
	ct := NewCellTranslator(p, nil, fastOptions(), zap.NewNop())

	_, _, err := ct.TranslateCell(context.Background(), "hello", "en", "ko")
	if err == nil {
		t.Fatal("expected run-fatal error")
	}
	if !errors.IsRunFatal(err) {
		t.Errorf("error not classified run-fatal: %v", err)
	}
	if p.callCount() != 1 {
		t.Errorf("run-fatal error retried: %d calls", p.callCount())
	}
}

func TestTranslateCellOversizeRejected(t *testing.T) {
	p := upperProvider()
	opts := fastOptions()
	opts.MaxTextLength = 10
	ct := NewCellTranslator(p, nil, opts, zap.NewNop())

	_, _, err := ct.TranslateCell(context.Background(), strings.Repeat("x", 11), "en", "ko")
	if err == nil {
		t.Fatal("expected error for oversize cell")
	}
	if errors.ClassOf(err) != errors.ClassBadRequest {
		t.Errorf("got class %s, want %s", errors.ClassOf(err), errors.ClassBadRequest)
	}
	if p.callCount() != 0 {
		t.Error("oversize cell reached the provider")
	}
}

func TestTranslateCellMemoHitSkipsProvider(t *testing.T) {
	p := upperProvider()
	memo := newFakeMemo()
	ct := NewCellTranslator(p, memo, fastOptions(), zap.NewNop())

	ctx := context.Background()
	if _, _, err := ct.TranslateCell(ctx, "hello", "en", "ko"); err != nil {
		t.Fatalf("first translation failed: %v", err)
	}

	got, degraded, err := ct.TranslateCell(ctx, "hello", "en", "ko")
	if err != nil || degraded {
		t.Fatalf("memo hit failed: err=%v degraded=%v", err, degraded)
	}
	if got != "HELLO" {
		t.Errorf("memo returned %q, want %q", got, "HELLO")
	}
	if p.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", p.callCount())
	}
	if memo.hits != 1 {
		t.Errorf("memo hit count = %d, want 1", memo.hits)
	}
}

func TestTranslateCellCanceledContextDegrades(t *testing.T) {
	p := upperProvider()
	ct := NewCellTranslator(p, nil, fastOptions(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, degraded, err := ct.TranslateCell(ctx, "hello", "en", "ko")
	if err != nil {
		t.Fatalf("cancellation must not surface an error, got %v", err)
	}
	if !degraded {
		t.Error("canceled cell not marked degraded")
	}
	if got != "hello" {
		t.Errorf("canceled cell returned %q, want original", got)
	}
	if p.callCount() != 0 {
		t.Error("canceled context still reached the provider")
	}
}

func TestRetryDelayHonorsRateLimitHint(t *testing.T) {
	ct := NewCellTranslator(upperProvider(), nil, fastOptions(), zap.NewNop())

	hinted := errors.NewTranslateError("slow down", errors.ClassRateLimited, 429).
		WithRetryAfter(7 * time.Second)
	if d := ct.retryDelay(hinted, 1); d != 7*time.Second {
		t.Errorf("hinted delay = %v, want 7s", d)
	}

	unhinted := errors.NewTranslateError("slow down", errors.ClassRateLimited, 429)
	if d := ct.retryDelay(unhinted, 1); d != time.Millisecond {
		t.Errorf("unhinted rate limit delay = %v, want configured fallback", d)
	}

	transient := errors.NewTranslateError("boom", errors.ClassServer, 500)
	if d := ct.retryDelay(transient, 2); d < 2*time.Millisecond {
		t.Errorf("backoff for attempt 2 = %v, want at least doubled base", d)
	}
}
