package credibility

import (
	"context"
	"fmt"
	"log"

	"geonews/internal/news"
)

// Engine applies reader feedback to an article's counters and the
// author's credibility score. It is the only writer of likes, fakeflags
// and credibility_score once a document exists.
type Engine struct {
	news   news.Repository
	users  news.UserRepository
	logger *log.Logger
}

func NewEngine(newsRepo news.Repository, userRepo news.UserRepository, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		news:   newsRepo,
		users:  userRepo,
		logger: logger,
	}
}

// Apply processes one LIKED / FAKEFLAGGED event. A news.ErrNotFound return
// means the referenced article was never stored (stale or skipped at
// creation) and the event should be dropped; any other error is an
// infrastructure failure worth redelivering.
func (e *Engine) Apply(ctx context.Context, ev news.Event) error {
	var counter string
	switch ev.Type {
	case news.EventLiked:
		counter = news.CounterLikes
	case news.EventFakeFlagged:
		counter = news.CounterFakeFlags
	default:
		return fmt.Errorf("not a feedback event type: %q", ev.Type)
	}

	// The atomic increment doubles as the existence check; the returned
	// counters are post-increment, which is what the formula wants.
	doc, err := e.news.IncrementCounter(ctx, ev.MessageID, counter)
	if err != nil {
		return err
	}
	props := doc.Props()

	actorScore, err := e.users.Credibility(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("read actor credibility: %w", err)
	}

	delta := scoreDelta(ev.Type, actorScore, props.Likes, props.FakeFlags)

	ownerScore, err := e.users.Credibility(ctx, props.UserID)
	if err != nil {
		return fmt.Errorf("read owner credibility: %w", err)
	}

	newScore := clamp(ownerScore+delta, 0, 100)
	if err := e.users.SetCredibility(ctx, props.UserID, newScore); err != nil {
		return fmt.Errorf("update owner credibility: %w", err)
	}

	e.logger.Printf("feedback %s on %s: likes=%d fakeflags=%d owner %s score %.2f -> %.2f",
		ev.Type, ev.MessageID, props.Likes, props.FakeFlags, props.UserID, ownerScore, newScore)
	return nil
}

// scoreDelta is intentionally asymmetric: a flag costs the author more
// than a like earns. The coefficients and /2 damping are fixed for
// behavioral compatibility with historic scores.
func scoreDelta(t news.EventType, actorScore float64, likes, fakeflags uint) float64 {
	l := float64(likes)
	f := float64(fakeflags)

	switch t {
	case news.EventLiked:
		return (0.4*actorScore + 0.3*l - 0.5*f) / 2
	case news.EventFakeFlagged:
		return (-0.3*actorScore - 0.4*f + 0.2*l) / 2
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
