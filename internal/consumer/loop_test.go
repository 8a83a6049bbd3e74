package consumer

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"geonews/internal/pipeline"
	"geonews/internal/source"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Receive(ctx context.Context, opts source.ReceiveOptions) ([]source.Message, error) {
	args := m.Called(ctx, opts)
	if msgs := args.Get(0); msgs != nil {
		return msgs.([]source.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) Acknowledge(ctx context.Context, handle string) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}

func (m *mockSource) Close() error {
	args := m.Called()
	return args.Error(0)
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, msg source.Message) pipeline.Outcome {
	args := m.Called(ctx, msg)
	return args.Get(0).(pipeline.Outcome)
}

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

type LoopSuite struct {
	suite.Suite

	src  *mockSource
	proc *mockProcessor

	logBuf *bytes.Buffer
	loop   *Loop
}

func TestLoopSuite(t *testing.T) {
	suite.Run(t, new(LoopSuite))
}

func (s *LoopSuite) SetupTest() {
	s.src = &mockSource{}
	s.proc = &mockProcessor{}
	s.logBuf = &bytes.Buffer{}

	opts := source.ReceiveOptions{
		MaxMessages:       10,
		WaitTime:          time.Second,
		VisibilityTimeout: 30 * time.Second,
	}
	s.loop = NewLoop(s.src, s.proc, opts, 10*time.Millisecond, 2, log.New(s.logBuf, "", 0))
}

func msg(id, handle string) source.Message {
	return source.Message{ID: id, Handle: handle, Body: []byte("{}")}
}

// TestRunBatch_AcksOnlyTerminalOutcomes Stored and Skipped acknowledge,
// Retry leaves the lease alone.
func (s *LoopSuite) TestRunBatch_AcksOnlyTerminalOutcomes() {
	batch := []source.Message{msg("a", "h-a"), msg("b", "h-b"), msg("c", "h-c")}

	s.src.On("Receive", mock.Anything, mock.Anything).Return(batch, nil).Once()

	s.proc.On("Process", mock.Anything, batch[0]).Return(pipeline.OutcomeStored).Once()
	s.proc.On("Process", mock.Anything, batch[1]).Return(pipeline.OutcomeSkipped).Once()
	s.proc.On("Process", mock.Anything, batch[2]).Return(pipeline.OutcomeRetry).Once()

	s.src.On("Acknowledge", mock.Anything, "h-a").Return(nil).Once()
	s.src.On("Acknowledge", mock.Anything, "h-b").Return(nil).Once()

	err := s.loop.RunBatch(context.Background())

	s.NoError(err)
	s.src.AssertExpectations(s.T())
	s.proc.AssertExpectations(s.T())
	s.src.AssertNotCalled(s.T(), "Acknowledge", mock.Anything, "h-c")
	s.Contains(s.logBuf.String(), "message c left for redelivery")
}

// TestRunBatch_EmptyBatchIsNotAnError
func (s *LoopSuite) TestRunBatch_EmptyBatchIsNotAnError() {
	s.src.On("Receive", mock.Anything, mock.Anything).Return([]source.Message{}, nil).Once()

	err := s.loop.RunBatch(context.Background())

	s.NoError(err)
	s.proc.AssertNotCalled(s.T(), "Process", mock.Anything, mock.Anything)
}

// TestRun_BacksOffOnReceiveError the loop survives a source error, waits
// the backoff, then receives again.
func (s *LoopSuite) TestRun_BacksOffOnReceiveError() {
	ctx, cancel := context.WithCancel(context.Background())

	s.src.
		On("Receive", mock.Anything, mock.Anything).
		Return(nil, errors.New("network blip")).
		Once()
	s.src.
		On("Receive", mock.Anything, mock.Anything).
		Return([]source.Message{}, nil).
		Run(func(mock.Arguments) { cancel() })

	s.loop.Run(ctx)

	s.src.AssertExpectations(s.T())
	s.Contains(s.logBuf.String(), "backing off")
	s.Contains(s.logBuf.String(), "consumer stopping")
}

// TestRun_StopsOnCancelledContext
func (s *LoopSuite) TestRun_StopsOnCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.loop.Run(ctx)

	s.src.AssertNotCalled(s.T(), "Receive", mock.Anything, mock.Anything)
	s.Contains(s.logBuf.String(), "consumer stopping")
}

// TestRun_DrainsInFlightBeforeReturning a message already dispatched when
// the context is cancelled still reaches its acknowledgment, and the
// context its handler runs with stays live so store and ack calls are
// not aborted by shutdown.
func (s *LoopSuite) TestRun_DrainsInFlightBeforeReturning() {
	ctx, cancel := context.WithCancel(context.Background())

	batch := []source.Message{msg("slow", "h-slow")}
	s.src.On("Receive", mock.Anything, mock.Anything).Return(batch, nil).Once()

	var procCtx, ackCtx context.Context

	var wg sync.WaitGroup
	wg.Add(1)
	s.proc.
		On("Process", mock.Anything, batch[0]).
		Return(pipeline.OutcomeStored).
		Run(func(args mock.Arguments) {
			procCtx = args.Get(0).(context.Context)
			cancel() // shutdown arrives mid-processing
		}).
		Once()
	s.src.
		On("Acknowledge", mock.Anything, "h-slow").
		Return(nil).
		Run(func(args mock.Arguments) {
			ackCtx = args.Get(0).(context.Context)
			wg.Done()
		}).
		Once()

	s.loop.Run(ctx)

	wg.Wait()
	s.src.AssertExpectations(s.T())
	s.proc.AssertExpectations(s.T())

	s.Require().Error(ctx.Err())
	s.NoError(procCtx.Err(), "in-flight processing must not see the shutdown cancellation")
	s.NoError(ackCtx.Err(), "acknowledgment must not see the shutdown cancellation")
}

// TestStartPolling_OneBatchPerTick
func (s *LoopSuite) TestStartPolling_OneBatchPerTick() {
	tickCh := make(chan time.Time)
	s.loop.newTicker = func(d time.Duration) ticker {
		return &fakeTicker{ch: tickCh}
	}

	var wg sync.WaitGroup
	wg.Add(2)

	s.src.
		On("Receive", mock.Anything, mock.Anything).
		Return([]source.Message{}, nil).
		Run(func(mock.Arguments) { wg.Done() }).
		Times(2)

	ctx, cancel := context.WithCancel(context.Background())
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		s.loop.StartPolling(ctx, time.Second)
	}()

	tickCh <- time.Now()
	tickCh <- time.Now()
	wg.Wait()

	cancel()
	<-pollerDone

	s.src.AssertExpectations(s.T())
	s.Contains(s.logBuf.String(), "poller stopping")
}
