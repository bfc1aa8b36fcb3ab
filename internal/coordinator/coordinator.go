// Package coordinator shapes traffic in front of the orchestrator: trailing
// debounce per subject, FIFO serialization per subject, and grouped batches.
package coordinator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/language"
)

const (
	DefaultDebounceWindow   = 800 * time.Millisecond
	DefaultSerialSpacing    = 100 * time.Millisecond
	DefaultBatchConcurrency = 4
)

// ErrSuperseded is delivered to a debounced call replaced by a newer one for
// the same subject.
var ErrSuperseded = errors.New("superseded by a newer request")

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (analysis.Result, error)
}

// Outcome is what a submitted call eventually resolves to.
type Outcome struct {
	Result analysis.Result
	Err    error
}

type Options struct {
	DebounceWindow time.Duration
	// SerialSpacing is the minimum gap between one queued call finishing
	// and the next one for the same subject starting. Zero disables spacing.
	SerialSpacing    time.Duration
	BatchConcurrency int
	Logger           zerolog.Logger
}

type Coordinator struct {
	analyzer    Analyzer
	window      time.Duration
	spacing     time.Duration
	concurrency int
	log         zerolog.Logger

	mu    sync.Mutex
	slots map[string]*debounceSlot
	lanes map[string]*lane
}

func New(analyzer Analyzer, opts Options) *Coordinator {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if opts.SerialSpacing < 0 {
		opts.SerialSpacing = DefaultSerialSpacing
	}
	if opts.BatchConcurrency < 1 {
		opts.BatchConcurrency = DefaultBatchConcurrency
	}
	return &Coordinator{
		analyzer:    analyzer,
		window:      opts.DebounceWindow,
		spacing:     opts.SerialSpacing,
		concurrency: opts.BatchConcurrency,
		log:         opts.Logger,
		slots:       make(map[string]*debounceSlot),
		lanes:       make(map[string]*lane),
	}
}

type debounceSlot struct {
	generation uint64
	timer      *time.Timer
	waiting    *call
	running    *call
}

type call struct {
	generation uint64
	req        analysis.Request
	ctx        context.Context
	cancel     context.CancelFunc
	out        chan Outcome
}

func (c *call) resolve(o Outcome) {
	c.cancel()
	c.out <- o
}

// Debounce delays req by the debounce window. A later Debounce for the same
// subject replaces it: the earlier call resolves with ErrSuperseded, and if it
// was already running its context is cancelled and its result discarded.
func (c *Coordinator) Debounce(ctx context.Context, req analysis.Request) <-chan Outcome {
	subject := req.SubjectID
	callCtx, cancel := context.WithCancel(ctx)
	next := &call{req: req, ctx: callCtx, cancel: cancel, out: make(chan Outcome, 1)}

	c.mu.Lock()
	slot, ok := c.slots[subject]
	if !ok {
		slot = &debounceSlot{}
		c.slots[subject] = slot
	}
	slot.generation++
	next.generation = slot.generation

	var superseded []*call
	if slot.waiting != nil {
		slot.timer.Stop()
		superseded = append(superseded, slot.waiting)
	}
	if slot.running != nil {
		// The running call resolves itself once Analyze returns.
		slot.running.cancel()
	}
	slot.waiting = next
	slot.timer = time.AfterFunc(c.window, func() { c.fire(subject, slot, next) })
	c.mu.Unlock()

	for _, old := range superseded {
		old.resolve(Outcome{Err: ErrSuperseded})
	}
	if len(superseded) > 0 {
		c.log.Debug().Str("subject_id", subject).Uint64("generation", next.generation).Msg("Debounced call superseded")
	}
	return next.out
}

func (c *Coordinator) fire(subject string, slot *debounceSlot, fired *call) {
	c.mu.Lock()
	if slot.waiting != fired {
		c.mu.Unlock()
		return
	}
	slot.waiting = nil
	slot.running = fired
	c.mu.Unlock()

	result, err := c.analyzer.Analyze(fired.ctx, fired.req)

	c.mu.Lock()
	current := slot.generation == fired.generation
	if slot.running == fired {
		slot.running = nil
	}
	if current && c.slots[subject] == slot {
		delete(c.slots, subject)
	}
	c.mu.Unlock()

	if !current {
		fired.resolve(Outcome{Err: ErrSuperseded})
		return
	}
	fired.resolve(Outcome{Result: result, Err: err})
}

type lane struct {
	queue   []*call
	running bool
	spacer  *rate.Limiter
}

// Serialize queues req behind earlier calls for the same subject. Calls run
// one at a time in submission order, spaced by the serial spacing, and every
// queued call runs.
func (c *Coordinator) Serialize(ctx context.Context, req analysis.Request) <-chan Outcome {
	subject := req.SubjectID
	next := &call{req: req, ctx: ctx, cancel: func() {}, out: make(chan Outcome, 1)}

	c.mu.Lock()
	l, ok := c.lanes[subject]
	if !ok {
		limit := rate.Inf
		if c.spacing > 0 {
			limit = rate.Every(c.spacing)
		}
		l = &lane{spacer: rate.NewLimiter(limit, 1)}
		c.lanes[subject] = l
	}
	l.queue = append(l.queue, next)
	start := !l.running
	l.running = true
	c.mu.Unlock()

	if start {
		go c.drain(subject, l)
	}
	return next.out
}

func (c *Coordinator) drain(subject string, l *lane) {
	for {
		c.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			if c.lanes[subject] == l {
				delete(c.lanes, subject)
			}
			c.mu.Unlock()
			return
		}
		next := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		c.mu.Unlock()

		if err := l.spacer.Wait(context.Background()); err != nil {
			c.log.Warn().Err(err).Str("subject_id", subject).Msg("Serial spacing wait failed")
		}
		result, err := c.analyzer.Analyze(next.ctx, next.req)
		// Taking a token at completion puts the next start at least one
		// spacing after this call ends, however long it ran.
		l.spacer.Reserve()
		next.resolve(Outcome{Result: result, Err: err})
	}
}

// Batch analyzes every request and returns one outcome per request at the
// same index. Requests are grouped by language pair and run concurrently;
// a failed item carries its input echoed back in the result.
func (c *Coordinator) Batch(ctx context.Context, reqs []analysis.Request) []Outcome {
	out := make([]Outcome, len(reqs))
	if len(reqs) == 0 {
		return out
	}

	groups := make(map[string][]int)
	for i, req := range reqs {
		key := language.PairKey(req.SourceLanguage, req.TargetLanguage)
		groups[key] = append(groups[key], i)
	}
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, key := range keys {
		for _, idx := range groups[key] {
			g.Go(func() error {
				result, err := c.analyzer.Analyze(ctx, reqs[idx])
				if err != nil {
					result = echo(reqs[idx])
				}
				out[idx] = Outcome{Result: result, Err: err}
				return nil
			})
		}
	}
	_ = g.Wait()

	failed := 0
	for _, o := range out {
		if o.Err != nil {
			failed++
		}
	}
	c.log.Debug().Int("items", len(reqs)).Int("groups", len(keys)).Int("failed", failed).Msg("Batch analyzed")
	return out
}

// echo is the per-item result for a failed batch entry.
func echo(req analysis.Request) analysis.Result {
	result := analysis.Result{
		RequestID:  req.ID,
		Operation:  req.Operation,
		ProviderID: analysis.ProviderNone,
		Warnings:   []string{analysis.WarningUnavailable},
	}
	if req.Operation == analysis.OperationTranslate {
		result.Translation = &analysis.TranslationPayload{
			Text:           req.InputText,
			SourceLanguage: language.NormalizeCode(req.SourceLanguage),
			TargetLanguage: language.NormalizeCode(req.TargetLanguage),
			Pending:        true,
		}
	}
	return result
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, req analysis.Request) (analysis.Result, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, req analysis.Request) (analysis.Result, error) {
	return f(ctx, req)
}
