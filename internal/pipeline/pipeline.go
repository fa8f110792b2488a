// Package pipeline turns flushed units into exactly one republish action
// each, enriched when the models cooperate and verbatim when they do not.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"
	"unicode/utf8"

	"listingbot/internal/domain"
	"listingbot/internal/enrich"
	"listingbot/internal/journal"
	"listingbot/internal/metrics"
)

type Extractor interface {
	Extract(ctx context.Context, text string) (*domain.PropertyRecord, error)
}

type Generator interface {
	Generate(ctx context.Context, req enrich.Request) (string, error)
}

// Journal receives one entry per handled unit.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

type Config struct {
	Extractor    Extractor
	Generator    Generator
	Publisher    domain.Publisher
	Journal      Journal // optional
	TargetChatID int64

	MediaCaptionLimit int
	TextLimit         int
	SafetyMargin      int
	Pacing            time.Duration

	// HardClip cuts captions that still exceed the transport maximum after
	// contact injection, keeping the contact line.
	HardClip      bool
	Contact       string
	ContactMarker string // defaults to the digits of Contact
	// EscapeHTML escapes outgoing captions for the HTML parse mode.
	EscapeHTML bool

	Metrics *metrics.Pipeline
	Logger  *slog.Logger
}

// Pipeline is safe for concurrent use; every unit is handled on the caller's
// goroutine.
type Pipeline struct {
	cfg     Config
	metrics *metrics.Pipeline
	logger  *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.MediaCaptionLimit <= 0 {
		cfg.MediaCaptionLimit = 1024
	}
	if cfg.TextLimit <= 0 {
		cfg.TextLimit = 4096
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewPipeline()
	}
	return &Pipeline{cfg: cfg, metrics: cfg.Metrics, logger: cfg.Logger}
}

// Handle republishes one unit. Enrichment failures fall back to a verbatim
// copy and are not errors. The returned error means nothing was published.
func (p *Pipeline) Handle(ctx context.Context, unit domain.Unit) error {
	log := p.logger.With("unit", unit.ID, "group", unit.GroupKey, "messages", unit.MessageIDs())

	text := unit.SourceText()
	if text == "" {
		log.Debug("no source text, republishing verbatim")
		return p.verbatim(ctx, unit, log)
	}

	record, err := p.cfg.Extractor.Extract(ctx, text)
	if err != nil {
		log.Warn("extraction failed, republishing verbatim", "err", err)
		return p.verbatim(ctx, unit, log)
	}

	limit := p.limitFor(unit)
	budget := limit - p.cfg.SafetyMargin
	desc, err := p.cfg.Generator.Generate(ctx, enrich.Request{
		Text:      text,
		MaxLength: budget,
		Type:      record.Type,
		Location:  record.Location,
		Price:     record.Price,
	})
	if err != nil {
		log.Warn("generation failed, republishing verbatim", "err", err)
		return p.verbatim(ctx, unit, log)
	}
	if desc == "" {
		log.Warn("empty description, republishing verbatim")
		return p.verbatim(ctx, unit, log)
	}

	if p.cfg.HardClip && utf8.RuneCountInString(desc) > limit {
		log.Warn("caption over transport limit, clipping", "length", utf8.RuneCountInString(desc), "limit", limit)
		desc = enrich.Clip(desc, limit, p.cfg.Contact, p.cfg.ContactMarker)
	}
	caption := p.escape(desc)

	err = p.publish(ctx, unit, &caption)
	p.record(ctx, unit, journal.OutcomeEnriched, utf8.RuneCountInString(desc), err)
	if err != nil {
		return err
	}
	p.metrics.Processed.Inc()
	log.Info("unit republished", "outcome", journal.OutcomeEnriched, "type", record.Type, "location", record.Location)
	return nil
}

func (p *Pipeline) verbatim(ctx context.Context, unit domain.Unit, log *slog.Logger) error {
	p.metrics.Fallbacks.Inc()
	err := p.publish(ctx, unit, nil)
	p.record(ctx, unit, journal.OutcomeVerbatim, 0, err)
	if err != nil {
		return err
	}
	p.metrics.Processed.Inc()
	log.Info("unit republished", "outcome", journal.OutcomeVerbatim)
	return nil
}

// limitFor picks the transport maximum: the first item decides whether the
// caption rides on media.
func (p *Pipeline) limitFor(unit domain.Unit) int {
	if unit.HasMedia() {
		return p.cfg.MediaCaptionLimit
	}
	return p.cfg.TextLimit
}

// publish sends the unit once. A nil caption republishes the original
// content. The pacing delay follows every attempt.
func (p *Pipeline) publish(ctx context.Context, unit domain.Unit, caption *string) error {
	if len(unit.Items) == 0 {
		return errors.New("unit has no items")
	}
	defer p.pace(ctx)

	first := unit.First()
	switch {
	case unit.IsAlbum():
		return p.cfg.Publisher.SendMediaGroup(ctx, p.mediaGroup(unit, caption))
	case caption != nil && first.Media == nil:
		// A copy can only override captions, so text posts are re-sent.
		return p.cfg.Publisher.SendText(ctx, domain.TextRequest{
			TargetChatID: p.cfg.TargetChatID,
			Text:         *caption,
			ReplyMarkup:  first.ReplyMarkup,
		})
	default:
		return p.cfg.Publisher.CopyMessage(ctx, domain.CopyRequest{
			TargetChatID: p.cfg.TargetChatID,
			FromChatID:   first.ChatID,
			MessageID:    first.MessageID,
			Caption:      caption,
			ReplyMarkup:  first.ReplyMarkup,
		})
	}
}

// mediaGroup puts the generated caption on the first element only. Without
// one, every element keeps its original caption.
func (p *Pipeline) mediaGroup(unit domain.Unit, caption *string) domain.MediaGroupRequest {
	req := domain.MediaGroupRequest{TargetChatID: p.cfg.TargetChatID}
	for _, it := range unit.Items {
		if it.Media == nil {
			p.logger.Warn("album item without media skipped", "unit", unit.ID, "message_id", it.MessageID)
			continue
		}
		m := domain.OutboundMedia{Media: *it.Media}
		switch {
		case caption == nil:
			m.Caption = p.escape(it.Caption)
		case len(req.Media) == 0:
			m.Caption = *caption
		}
		req.Media = append(req.Media, m)
	}
	return req
}

func (p *Pipeline) pace(ctx context.Context) {
	if p.cfg.Pacing <= 0 {
		return
	}
	t := time.NewTimer(p.cfg.Pacing)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *Pipeline) escape(s string) string {
	if p.cfg.EscapeHTML {
		return html.EscapeString(s)
	}
	return s
}

func (p *Pipeline) record(ctx context.Context, unit domain.Unit, outcome journal.Outcome, captionLen int, sendErr error) {
	if p.cfg.Journal == nil {
		return
	}
	e := journal.Entry{
		UnitID:     unit.ID,
		GroupKey:   unit.GroupKey,
		MessageIDs: unit.MessageIDs(),
		Outcome:    outcome,
		CaptionLen: captionLen,
	}
	if sendErr != nil {
		e.Outcome = journal.OutcomeFailed
		e.Error = fmt.Sprintf("%s: %v", outcome, sendErr)
	}
	// The unit is already published; a cancelled ctx must not lose the entry.
	if err := p.cfg.Journal.Record(context.WithoutCancel(ctx), e); err != nil {
		p.logger.Warn("journal write failed", "unit", unit.ID, "err", err)
	}
}
