package presenter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/hijabist/internal/analysis"
	"github.com/kozaktomas/hijabist/internal/constants"
	"github.com/kozaktomas/hijabist/internal/logger"
	"github.com/kozaktomas/hijabist/internal/metrics"
	"github.com/kozaktomas/hijabist/internal/session"
	"github.com/kozaktomas/hijabist/internal/store"
)

// SaveOutcome reports what SaveAnalysis did.
type SaveOutcome string

const (
	// SaveLoginRequired means there is no session; nothing was written.
	SaveLoginRequired SaveOutcome = "login_required"
	SaveStored        SaveOutcome = "saved"
	SaveAlreadySaved  SaveOutcome = "already_saved"
)

// ShareMethod reports how results were shared.
type ShareMethod string

const (
	ShareNative    ShareMethod = "native"
	ShareClipboard ShareMethod = "clipboard"
)

// ErrShareUnsupported is returned by a Sharer that cannot share on this platform.
var ErrShareUnsupported = errors.New("share is not supported")

// ShareData is the payload handed to a Sharer.
type ShareData struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

// Sharer is a platform share capability.
type Sharer interface {
	Share(ctx context.Context, data ShareData) error
}

// Clipboard receives the fallback share link.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// ShareResult is the outcome of Share, with the notice to show the user.
type ShareResult struct {
	Method      ShareMethod `json:"method"`
	Data        ShareData   `json:"data"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
}

// SessionSource exposes the current session.
type SessionSource interface {
	Current() *session.Session
}

// ResultsOptions wires a ResultsPresenter.
type ResultsOptions struct {
	Sessions  SessionSource
	Store     store.AnalysisStore
	Sharer    Sharer
	Clipboard Clipboard
	PageURL   string
	Metrics   metrics.Recorder
}

// ResultsPresenter backs the results view of one analysis.
type ResultsPresenter struct {
	result *analysis.Result
	opts   ResultsOptions
	newID  func() string

	mu      sync.Mutex
	saved   bool
	savedID string
}

// NewResultsPresenter creates a presenter for r.
func NewResultsPresenter(r *analysis.Result, opts ResultsOptions) *ResultsPresenter {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	return &ResultsPresenter{result: r, opts: opts, newID: uuid.NewString}
}

// Result returns the presented analysis.
func (p *ResultsPresenter) Result() *analysis.Result {
	return p.result
}

// IsSaved reports whether the result was saved.
func (p *ResultsPresenter) IsSaved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved
}

// SaveAnalysis appends the result to the user's history once. Without a
// session it returns SaveLoginRequired and writes nothing.
func (p *ResultsPresenter) SaveAnalysis(ctx context.Context) (SaveOutcome, error) {
	var s *session.Session
	if p.opts.Sessions != nil {
		s = p.opts.Sessions.Current()
	}
	if s == nil {
		p.opts.Metrics.RecordSave(string(SaveLoginRequired))
		return SaveLoginRequired, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.saved {
		return SaveAlreadySaved, nil
	}
	if err := p.result.Validate(); err != nil {
		return "", err
	}
	if p.opts.Store == nil {
		return "", errors.New("no analysis store configured")
	}

	id := p.newID()
	if err := p.opts.Store.AppendAnalysis(ctx, s.UID, store.FromResult(id, p.result)); err != nil {
		p.opts.Metrics.RecordSave("error")
		return "", fmt.Errorf("could not save analysis: %w", err)
	}

	p.saved = true
	p.savedID = id
	p.opts.Metrics.RecordSave(string(SaveStored))
	logger.WithFields(map[string]any{"uid": s.UID, "analysis_id": id}).Info("analysis saved")
	return SaveStored, nil
}

// ShareData builds the share payload for the result.
func (p *ResultsPresenter) ShareData() ShareData {
	face, tone := "", ""
	if p.result != nil && p.result.FaceShape != nil {
		face = p.result.FaceShape.Type
	}
	if p.result != nil && p.result.SkinTone != nil {
		tone = p.result.SkinTone.Type
	}
	return ShareData{
		Title: constants.ShareTitle,
		Text:  fmt.Sprintf("Check out my personalized hijab analysis! Face shape: %s, Skin tone: %s", face, tone),
		URL:   p.opts.PageURL,
	}
}

// Share uses the Sharer when there is one and falls back to copying the page
// URL to the clipboard. A missing or failing Sharer is not an error.
func (p *ResultsPresenter) Share(ctx context.Context) (*ShareResult, error) {
	data := p.ShareData()

	if p.opts.Sharer != nil {
		err := p.opts.Sharer.Share(ctx, data)
		if err == nil {
			p.opts.Metrics.RecordShare(string(ShareNative))
			return &ShareResult{Method: ShareNative, Data: data}, nil
		}
		if !errors.Is(err, ErrShareUnsupported) {
			logger.WithError(err).Debug("native share failed, falling back to clipboard")
		}
	}

	if p.opts.Clipboard != nil {
		if err := p.opts.Clipboard.WriteText(ctx, data.URL); err != nil {
			return nil, fmt.Errorf("could not copy link: %w", err)
		}
	}
	p.opts.Metrics.RecordShare(string(ShareClipboard))
	return &ShareResult{
		Method:      ShareClipboard,
		Data:        data,
		Title:       "Link copied",
		Description: "Results link has been copied to your clipboard.",
	}, nil
}

// WriterClipboard is a Clipboard that prints the text, for terminals.
type WriterClipboard struct {
	W io.Writer
}

// WriteText implements Clipboard.
func (c WriterClipboard) WriteText(_ context.Context, text string) error {
	_, err := fmt.Fprintln(c.W, text)
	return err
}
