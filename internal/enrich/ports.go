package enrich

import (
	"context"
	"errors"
)

// ErrUnavailable signals that an enrichment backend could not produce a
// result for this input. It is permanent from the pipeline's point of
// view: redelivering the same text will not make it translatable.
var ErrUnavailable = errors.New("enrich: result unavailable")

// LanguageDetector reports the ISO language code of a piece of text.
type LanguageDetector interface {
	DetectLanguage(ctx context.Context, text string) (string, error)
}

// Translator renders text into the target language.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Summarizer condenses article text into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Classifier picks one label out of the candidate set. It never fails:
// an unusable result degrades to the fallback category instead.
type Classifier interface {
	Classify(ctx context.Context, text string, categories []string) (string, error)
}

// BodyExtractor pulls readable article text out of a URL.
type BodyExtractor interface {
	ExtractBody(ctx context.Context, pageURL string) (string, error)
}
