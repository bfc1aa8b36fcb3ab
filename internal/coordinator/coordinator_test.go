package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/chatsense/internal/analysis"
)

type recordingAnalyzer struct {
	mu    sync.Mutex
	calls []analysis.Request
	delay time.Duration
	fail  func(analysis.Request) bool
}

func (r *recordingAnalyzer) Analyze(ctx context.Context, req analysis.Request) (analysis.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	delay := r.delay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return analysis.Result{}, ctx.Err()
		}
	}
	if r.fail != nil && r.fail(req) {
		return analysis.Result{}, analysis.NewInvalidInput("input_text", "rejected")
	}
	return analysis.Result{
		RequestID:   req.ID,
		Operation:   req.Operation,
		Translation: &analysis.TranslationPayload{Text: "out:" + req.InputText, TargetLanguage: req.TargetLanguage},
		Confidence:  0.9,
		ProviderID:  "stub",
		Warnings:    []string{},
	}, nil
}

func (r *recordingAnalyzer) snapshot() []analysis.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]analysis.Request(nil), r.calls...)
}

func await(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for outcome")
		return Outcome{}
	}
}

func TestDebounceRunsOnlyLastCall(t *testing.T) {
	t.Parallel()

	analyzer := &recordingAnalyzer{}
	c := New(analyzer, Options{DebounceWindow: 800 * time.Millisecond, Logger: zerolog.Nop()})

	outs := make([]<-chan Outcome, 5)
	for i := range outs {
		outs[i] = c.Debounce(context.Background(), analysis.Request{
			ID:             fmt.Sprintf("req-%d", i),
			Operation:      analysis.OperationTranslate,
			SubjectID:      "chat-1",
			InputText:      fmt.Sprintf("draft %d", i),
			TargetLanguage: "en",
		})
		time.Sleep(20 * time.Millisecond)
	}

	for i := 0; i < 4; i++ {
		if o := await(t, outs[i]); !errors.Is(o.Err, ErrSuperseded) {
			t.Fatalf("call %d: expected superseded, got %+v", i, o)
		}
	}
	last := await(t, outs[4])
	if last.Err != nil || last.Result.Text() != "out:draft 4" {
		t.Fatalf("unexpected final outcome %+v", last)
	}

	calls := analyzer.snapshot()
	if len(calls) != 1 || calls[0].ID != "req-4" {
		t.Fatalf("expected exactly one call with the last params, got %+v", calls)
	}
}

func TestDebounceSubjectsAreIndependent(t *testing.T) {
	t.Parallel()

	analyzer := &recordingAnalyzer{}
	c := New(analyzer, Options{DebounceWindow: 30 * time.Millisecond, Logger: zerolog.Nop()})

	a := c.Debounce(context.Background(), analysis.Request{SubjectID: "a", InputText: "one", Operation: analysis.OperationTranslate})
	b := c.Debounce(context.Background(), analysis.Request{SubjectID: "b", InputText: "two", Operation: analysis.OperationTranslate})
	if o := await(t, a); o.Err != nil {
		t.Fatalf("subject a: %v", o.Err)
	}
	if o := await(t, b); o.Err != nil {
		t.Fatalf("subject b: %v", o.Err)
	}
	if n := len(analyzer.snapshot()); n != 2 {
		t.Fatalf("expected two calls, got %d", n)
	}
}

func TestDebounceCancelsRunningCall(t *testing.T) {
	t.Parallel()

	analyzer := &recordingAnalyzer{delay: time.Second}
	c := New(analyzer, Options{DebounceWindow: 10 * time.Millisecond, Logger: zerolog.Nop()})

	first := c.Debounce(context.Background(), analysis.Request{SubjectID: "s", InputText: "first", Operation: analysis.OperationTranslate})
	deadline := time.Now().Add(2 * time.Second)
	for len(analyzer.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	analyzer.mu.Lock()
	analyzer.delay = 0
	analyzer.mu.Unlock()

	second := c.Debounce(context.Background(), analysis.Request{SubjectID: "s", InputText: "second", Operation: analysis.OperationTranslate})
	if o := await(t, first); !errors.Is(o.Err, ErrSuperseded) {
		t.Fatalf("expected running call superseded, got %+v", o)
	}
	if o := await(t, second); o.Err != nil || o.Result.Text() != "out:second" {
		t.Fatalf("unexpected second outcome %+v", o)
	}
}

func TestSerializeKeepsSubmissionOrder(t *testing.T) {
	t.Parallel()

	analyzer := &recordingAnalyzer{delay: 5 * time.Millisecond}
	c := New(analyzer, Options{SerialSpacing: 20 * time.Millisecond, Logger: zerolog.Nop()})

	started := time.Now()
	outs := make([]<-chan Outcome, 3)
	for i := range outs {
		outs[i] = c.Serialize(context.Background(), analysis.Request{
			Operation: analysis.OperationEmotion,
			SubjectID: "chat-9",
			InputText: fmt.Sprintf("message %d", i),
		})
	}
	for i, ch := range outs {
		o := await(t, ch)
		if o.Err != nil {
			t.Fatalf("call %d: %v", i, o.Err)
		}
		if want := fmt.Sprintf("out:message %d", i); o.Result.Text() != want {
			t.Fatalf("call %d: expected %q, got %q", i, want, o.Result.Text())
		}
	}

	calls := analyzer.snapshot()
	for i, req := range calls {
		if want := fmt.Sprintf("message %d", i); req.InputText != want {
			t.Fatalf("call %d ran out of order: %q", i, req.InputText)
		}
	}
	if elapsed := time.Since(started); elapsed < 40*time.Millisecond {
		t.Fatalf("expected spacing between drained calls, finished in %s", elapsed)
	}
}

func TestSerializeOneInFlightPerSubject(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	analyzer := AnalyzerFunc(func(ctx context.Context, req analysis.Request) (analysis.Result, error) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return analysis.Result{Operation: req.Operation, Warnings: []string{}}, nil
	})
	c := New(analyzer, Options{SerialSpacing: 0, Logger: zerolog.Nop()})

	outs := make([]<-chan Outcome, 5)
	for i := range outs {
		outs[i] = c.Serialize(context.Background(), analysis.Request{SubjectID: "x", InputText: "hi there"})
	}
	for _, ch := range outs {
		await(t, ch)
	}
	if peak != 1 {
		t.Fatalf("expected one call in flight at a time, peak was %d", peak)
	}
}

func TestSerializeSpacesAfterCompletion(t *testing.T) {
	t.Parallel()

	const spacing = 40 * time.Millisecond
	var (
		mu     sync.Mutex
		starts []time.Time
		ends   []time.Time
	)
	analyzer := AnalyzerFunc(func(ctx context.Context, req analysis.Request) (analysis.Result, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		time.Sleep(60 * time.Millisecond)
		mu.Lock()
		ends = append(ends, time.Now())
		mu.Unlock()
		return analysis.Result{Operation: req.Operation, Warnings: []string{}}, nil
	})
	c := New(analyzer, Options{SerialSpacing: spacing, Logger: zerolog.Nop()})

	outs := make([]<-chan Outcome, 3)
	for i := range outs {
		outs[i] = c.Serialize(context.Background(), analysis.Request{SubjectID: "chat-slow", InputText: "still here"})
	}
	for _, ch := range outs {
		await(t, ch)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(starts) != 3 || len(ends) != 3 {
		t.Fatalf("expected 3 calls, got %d starts and %d ends", len(starts), len(ends))
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(ends[i-1]); gap < spacing-5*time.Millisecond {
			t.Fatalf("call %d started %s after call %d finished, want at least %s", i, gap, i-1, spacing)
		}
	}
}

func TestSerializeReleasesIdleSubjects(t *testing.T) {
	t.Parallel()

	c := New(&recordingAnalyzer{}, Options{SerialSpacing: 0, Logger: zerolog.Nop()})

	outs := make([]<-chan Outcome, 0, 6)
	for i := 0; i < 6; i++ {
		outs = append(outs, c.Serialize(context.Background(), analysis.Request{
			SubjectID: fmt.Sprintf("user-%d", i%3),
			InputText: "hello there",
		}))
	}
	for _, ch := range outs {
		await(t, ch)
	}

	deadline := time.Now().Add(time.Second)
	for {
		c.mu.Lock()
		idle := len(c.lanes)
		c.mu.Unlock()
		if idle == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected drained subjects to be released, %d remain", idle)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBatchPreservesIndexes(t *testing.T) {
	t.Parallel()

	analyzer := &recordingAnalyzer{fail: func(req analysis.Request) bool { return req.InputText == "bad" }}
	c := New(analyzer, Options{BatchConcurrency: 2, Logger: zerolog.Nop()})

	reqs := []analysis.Request{
		{Operation: analysis.OperationTranslate, InputText: "un", SourceLanguage: "fr", TargetLanguage: "en"},
		{Operation: analysis.OperationTranslate, InputText: "uno", SourceLanguage: "es", TargetLanguage: "en"},
		{Operation: analysis.OperationTranslate, InputText: "bad", SourceLanguage: "fr", TargetLanguage: "en"},
		{Operation: analysis.OperationTranslate, InputText: "deux", SourceLanguage: "FR", TargetLanguage: "en"},
	}
	outs := c.Batch(context.Background(), reqs)
	if len(outs) != len(reqs) {
		t.Fatalf("expected %d outcomes, got %d", len(reqs), len(outs))
	}
	for i, o := range outs {
		if i == 2 {
			continue
		}
		if o.Err != nil || o.Result.Text() != "out:"+reqs[i].InputText {
			t.Fatalf("item %d: unexpected outcome %+v", i, o)
		}
	}
	failed := outs[2]
	if failed.Err == nil {
		t.Fatalf("expected item 2 to fail")
	}
	if failed.Result.Text() != "bad" || !failed.Result.Translation.Pending {
		t.Fatalf("expected failed item to echo its input, got %+v", failed.Result)
	}
}

func TestBatchEmpty(t *testing.T) {
	t.Parallel()

	c := New(&recordingAnalyzer{}, Options{Logger: zerolog.Nop()})
	if outs := c.Batch(context.Background(), nil); len(outs) != 0 {
		t.Fatalf("expected no outcomes, got %d", len(outs))
	}
}
