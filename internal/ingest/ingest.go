// Package ingest normalizes multi-modal input into plain text for claim
// extraction. OCR, transcription, and keyframe extraction are external
// collaborators specified only at their interface boundary.
package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/agentra/factcheck/internal/model"
)

// OCR reads text out of an image. Implementations live outside the core.
type OCR interface {
	RecognizeText(ctx context.Context, imagePath string) (string, error)
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// KeyframeExtractor pulls representative frames out of a video; only the
// count is surfaced to the pipeline as a visual note.
type KeyframeExtractor interface {
	ExtractKeyframes(ctx context.Context, videoPath string, maxFrames int) ([]string, error)
}

// PageFetcher retrieves readable text for a URL input.
type PageFetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

// Normalized is the outcome of input normalization.
type Normalized struct {
	Text        string
	Source      model.SourceKind
	VisualNotes []string
}

// Normalizer resolves an Input to verifiable text. Collaborators are
// optional; a nil collaborator skips that modality.
type Normalizer struct {
	ocr        OCR
	transcribe Transcriber
	keyframes  KeyframeExtractor
	fetcher    PageFetcher
	logger     *zap.Logger
}

// NewNormalizer wires the collaborators. Any of them may be nil.
func NewNormalizer(ocr OCR, transcribe Transcriber, keyframes KeyframeExtractor, fetcher PageFetcher, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		ocr:        ocr,
		transcribe: transcribe,
		keyframes:  keyframes,
		fetcher:    fetcher,
		logger:     logger,
	}
}

// Normalize resolves the input text with priority: text, URL, audio, image.
// A failed modality logs and falls through to the next; no usable text at
// all returns ErrNoInput.
func (n *Normalizer) Normalize(ctx context.Context, input model.Input) (*Normalized, error) {
	out := &Normalized{Source: model.SourceText}

	out.Text = CleanText(input.Text)

	if out.Text == "" && input.URL != "" && n.fetcher != nil {
		text, err := n.fetcher.FetchText(ctx, input.URL)
		if err != nil {
			n.logger.Warn("URL fetch failed", zap.String("url", input.URL), zap.Error(err))
		} else {
			out.Text = CleanText(text)
			out.Source = model.SourceURL
		}
	}

	if out.Text == "" && input.AudioPath != "" && n.transcribe != nil {
		text, err := n.transcribe.Transcribe(ctx, input.AudioPath)
		if err != nil {
			n.logger.Warn("transcription failed", zap.Error(err))
		} else {
			out.Text = CleanText(text)
			out.Source = model.SourceAudio
		}
	}

	if out.Text == "" && input.ImagePath != "" && n.ocr != nil {
		text, err := n.ocr.RecognizeText(ctx, input.ImagePath)
		if err != nil {
			n.logger.Warn("OCR failed", zap.Error(err))
		} else {
			out.Text = CleanText(text)
			out.Source = model.SourceImage
		}
	}

	if out.Text == "" {
		return nil, model.ErrNoInput
	}

	if input.VideoPath != "" && n.keyframes != nil {
		frames, err := n.keyframes.ExtractKeyframes(ctx, input.VideoPath, 5)
		if err != nil {
			n.logger.Warn("keyframe extraction failed", zap.Error(err))
		} else if len(frames) > 0 {
			out.VisualNotes = append(out.VisualNotes, fmt.Sprintf("%d keyframes extracted", len(frames)))
		}
	}

	return out, nil
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// CleanText collapses whitespace runs and trims the result.
func CleanText(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}
