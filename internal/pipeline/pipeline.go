package pipeline

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"geonews/internal/enrich"
	"geonews/internal/news"
	"geonews/internal/source"

	"go.mongodb.org/mongo-driver/mongo"
)

// Outcome is the terminal state of one message's pipeline run. The
// consumer loop acknowledges on Stored and Skipped; Retry leaves the
// message to reappear after its lease expires.
type Outcome string

const (
	OutcomeStored  Outcome = "stored"
	OutcomeSkipped Outcome = "skipped"
	OutcomeRetry   Outcome = "retry"
)

// Seed ranges for the counters a fresh article starts with. Policy values
// carried over from the original scoring bootstrap, not security material.
const (
	seedLikesMin = 10
	seedLikesMax = 20
	seedFlagsMax = 5
)

// FeedbackHandler consumes LIKED / FAKEFLAGGED events.
type FeedbackHandler interface {
	Apply(ctx context.Context, ev news.Event) error
}

// Enrichers bundles the content-enrichment ports the pipeline drives.
type Enrichers struct {
	Detector   enrich.LanguageDetector
	Translator enrich.Translator
	Summarizer enrich.Summarizer
	Classifier enrich.Classifier
	Extractor  enrich.BodyExtractor
}

type Engine struct {
	repo       news.Repository
	feedback   FeedbackHandler
	ports      Enrichers
	targetLang string
	minBodyLen int
	logger     *log.Logger
}

func NewEngine(repo news.Repository, feedback FeedbackHandler, ports Enrichers, targetLang string, minBodyLen int, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		repo:       repo,
		feedback:   feedback,
		ports:      ports,
		targetLang: targetLang,
		minBodyLen: minBodyLen,
		logger:     logger,
	}
}

// Process runs one raw message to a terminal outcome. Content defects are
// Skipped (they can never succeed on redelivery); only infrastructure
// failures come back as Retry.
func (p *Engine) Process(ctx context.Context, msg source.Message) Outcome {
	ev, err := news.DecodeEvent(msg.Body)
	if err != nil {
		p.logger.Printf("skip %s: %v", msg.ID, err)
		return OutcomeSkipped
	}

	switch ev.Type {
	case news.EventLiked, news.EventFakeFlagged:
		return p.processFeedback(ctx, msg.ID, ev)
	case news.EventCreate:
		return p.processCreate(ctx, msg, ev)
	default:
		p.logger.Printf("skip %s: unknown event type %q", msg.ID, ev.Type)
		return OutcomeSkipped
	}
}

func (p *Engine) processFeedback(ctx context.Context, msgID string, ev news.Event) Outcome {
	err := p.feedback.Apply(ctx, ev)
	if errors.Is(err, news.ErrNotFound) {
		p.logger.Printf("skip %s: feedback for unknown article %s", msgID, ev.MessageID)
		return OutcomeSkipped
	}
	if err != nil {
		p.logger.Printf("retry %s: feedback failed: %v", msgID, err)
		return OutcomeRetry
	}
	// Feedback never creates a document; the score mutation is the side
	// effect, the outcome stays Skipped.
	return OutcomeSkipped
}

func (p *Engine) processCreate(ctx context.Context, msg source.Message, ev news.Event) Outcome {
	// Some producers batch: the first articles entry is the effective event.
	if len(ev.Articles) > 0 {
		ev = ev.Articles[0]
	}

	if ev.MessageID == "" {
		ev.MessageID = msg.ID
	}
	if ev.UserID == "" {
		ev.UserID = userIDFromURL(ev.URL)
	}

	title := strings.TrimSpace(ev.Title)
	if title == "" {
		title = "Untitled News"
	}

	title, outcome := p.normalizeTitle(ctx, msg.ID, title)
	if outcome != "" {
		return outcome
	}

	if ev.Geo == nil {
		p.logger.Printf("skip %s: missing coordinates", msg.ID)
		return OutcomeSkipped
	}
	link, err := url.Parse(ev.URL)
	if err != nil || !link.IsAbs() || link.Host == "" {
		p.logger.Printf("skip %s: invalid url %q", msg.ID, ev.URL)
		return OutcomeSkipped
	}

	body := strings.TrimSpace(ev.Body)
	if body == "" {
		extracted, err := p.ports.Extractor.ExtractBody(ctx, ev.URL)
		if err != nil {
			p.logger.Printf("skip %s: body extraction failed: %v", msg.ID, err)
			return OutcomeSkipped
		}
		body = strings.TrimSpace(extracted)
	}
	if len(body) <= p.minBodyLen {
		p.logger.Printf("skip %s: body too short (%d chars)", msg.ID, len(body))
		return OutcomeSkipped
	}

	translated, err := p.ports.Translator.Translate(ctx, body, p.targetLang)
	if err != nil {
		p.logger.Printf("skip %s: body translation failed: %v", msg.ID, err)
		return OutcomeSkipped
	}
	summary, err := p.ports.Summarizer.Summarize(ctx, translated)
	if err != nil {
		p.logger.Printf("skip %s: summarization failed: %v", msg.ID, err)
		return OutcomeSkipped
	}
	category, err := p.ports.Classifier.Classify(ctx, summary, enrich.Categories)
	if err != nil || !enrich.IsCategory(category) {
		category = enrich.FallbackCategory
	}

	doc := news.NewDocument(*ev.Geo, news.Properties{
		MessageID:  ev.MessageID,
		Title:      title,
		Summary:    summary,
		Link:       ev.URL,
		Category:   category,
		UserID:     ev.UserID,
		Likes:      uint(seedLikesMin + rand.Intn(seedLikesMax-seedLikesMin+1)),
		FakeFlags:  uint(rand.Intn(seedFlagsMax + 1)),
		Attributes: msg.Attributes,
	}, time.Now().UTC())

	if err := p.repo.Insert(ctx, doc); err != nil {
		// A duplicate means the document landed on an earlier delivery
		// whose acknowledgment was lost. Retrying can never succeed, so
		// acknowledge instead of looping the message forever.
		if errors.Is(err, news.ErrAlreadyStored) || mongo.IsDuplicateKeyError(err) {
			p.logger.Printf("skip %s: already stored, acknowledging redelivery", ev.MessageID)
			return OutcomeSkipped
		}
		p.logger.Printf("retry %s: insert failed: %v", msg.ID, err)
		return OutcomeRetry
	}

	p.logger.Printf("stored %s as %q (%s)", ev.MessageID, title, category)
	return OutcomeStored
}

// normalizeTitle translates the title into the target language when the
// detector says it is something else. A failed detection keeps the title
// as-is; a failed translation skips the message. The empty Outcome means
// keep going.
func (p *Engine) normalizeTitle(ctx context.Context, msgID, title string) (string, Outcome) {
	lang, err := p.ports.Detector.DetectLanguage(ctx, title)
	if err != nil || lang == p.targetLang {
		return title, ""
	}

	translated, err := p.ports.Translator.Translate(ctx, title, p.targetLang)
	if err != nil {
		p.logger.Printf("skip %s: title translation failed: %v", msgID, err)
		return "", OutcomeSkipped
	}
	return translated, ""
}

// userIDFromURL derives an author id from the registrable domain: strip a
// leading www., take the first label.
func userIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	if label, _, ok := strings.Cut(host, "."); ok && label != "" {
		return label
	}
	if host != "" {
		return host
	}
	return "unknown"
}
