package consumer

import (
	"context"
	"log"
	"sync"
	"time"

	"geonews/internal/pipeline"
	"geonews/internal/source"
)

// Processor runs one message to a terminal outcome.
type Processor interface {
	Process(ctx context.Context, msg source.Message) pipeline.Outcome
}

// ticker is an interface so we can swap out time.Ticker in tests.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type tickerFactory func(d time.Duration) ticker

// timeTicker is the real implementation backed by time.Ticker.
type timeTicker struct {
	*time.Ticker
}

func (t *timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func (t *timeTicker) Stop() {
	t.Ticker.Stop()
}

// Loop drives the receive / dispatch / acknowledge cycle. A message is
// acknowledged only after its own pipeline run reached Stored or Skipped;
// Retry leaves it leased so the source redelivers it.
type Loop struct {
	src       source.Source
	proc      Processor
	opts      source.ReceiveOptions
	backoff   time.Duration
	workers   int
	logger    *log.Logger
	newTicker tickerFactory
}

func NewLoop(src source.Source, proc Processor, opts source.ReceiveOptions, backoff time.Duration, workers int, logger *log.Logger) *Loop {
	if logger == nil {
		logger = log.Default()
	}
	if workers < 1 {
		workers = 1
	}

	return &Loop{
		src:     src,
		proc:    proc,
		opts:    opts,
		backoff: backoff,
		workers: workers,
		logger:  logger,
		newTicker: func(d time.Duration) ticker {
			return &timeTicker{time.NewTicker(d)}
		},
	}
}

// Run consumes until the context is cancelled. Source-level receive errors
// are never fatal: log, back off, try again.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Printf("consumer started (batch=%d wait=%v visibility=%v)",
		l.opts.MaxMessages, l.opts.WaitTime, l.opts.VisibilityTimeout)

	for {
		if ctx.Err() != nil {
			l.logger.Println("consumer stopping — context cancelled")
			return
		}

		if err := l.RunBatch(ctx); err != nil {
			if ctx.Err() != nil {
				l.logger.Println("consumer stopping — context cancelled")
				return
			}
			l.logger.Printf("receive error: %v — backing off %v", err, l.backoff)
			select {
			case <-ctx.Done():
				l.logger.Println("consumer stopping — context cancelled")
				return
			case <-time.After(l.backoff):
			}
		}
	}
}

// RunBatch performs one receive / dispatch / acknowledge cycle. An empty
// batch is a normal long-poll result, not an error.
func (l *Loop) RunBatch(ctx context.Context) error {
	msgs, err := l.src.Receive(ctx, l.opts)
	if err != nil {
		// Anything received alongside a cancellation stays unacknowledged
		// and will be redelivered once the lease lapses.
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	l.logger.Printf("received %d messages", len(msgs))
	l.dispatch(ctx, msgs)
	return nil
}

// dispatch fans the batch out over a bounded worker pool and waits for
// every message to reach a terminal state before returning, so a
// cancelled context still drains in-flight work.
func (l *Loop) dispatch(ctx context.Context, msgs []source.Message) {
	// Once a message is in flight it must run to a terminal state and,
	// when terminal, be acknowledged. Detaching from cancellation keeps
	// shutdown from aborting store or ack calls mid-way, which would turn
	// already-stored messages into redeliveries.
	procCtx := context.WithoutCancel(ctx)

	sem := make(chan struct{}, l.workers)
	var wg sync.WaitGroup

	for _, m := range msgs {
		wg.Add(1)
		sem <- struct{}{}
		go func(m source.Message) {
			defer wg.Done()
			defer func() { <-sem }()
			l.handle(procCtx, m)
		}(m)
	}

	wg.Wait()
}

func (l *Loop) handle(ctx context.Context, m source.Message) {
	switch outcome := l.proc.Process(ctx, m); outcome {
	case pipeline.OutcomeStored, pipeline.OutcomeSkipped:
		if err := l.src.Acknowledge(ctx, m.Handle); err != nil {
			l.logger.Printf("failed to acknowledge message %s: %v", m.ID, err)
		}
	case pipeline.OutcomeRetry:
		l.logger.Printf("message %s left for redelivery", m.ID)
	default:
		l.logger.Printf("message %s: unexpected outcome %q, not acknowledging", m.ID, outcome)
	}
}

// StartPolling runs one batch per tick instead of a tight loop, for
// deployments that want the scheduled-consumer shape.
func (l *Loop) StartPolling(ctx context.Context, interval time.Duration) {
	t := l.newTicker(interval)
	defer t.Stop()

	l.logger.Printf("polling every %v...", interval)

	for {
		select {
		case <-ctx.Done():
			l.logger.Println("poller stopping — context cancelled")
			return

		case <-t.C():
			if err := l.RunBatch(ctx); err != nil && ctx.Err() == nil {
				l.logger.Printf("poll error: %v", err)
			}
		}
	}
}
