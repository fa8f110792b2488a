package enrich

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"listingbot/internal/cache"
	"listingbot/internal/domain"
	"listingbot/internal/metrics"
	"listingbot/internal/retry"
)

const testContact = "+447700900000 (Telegram)"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeCompleter replays scripted replies; once the script runs out the last
// reply repeats.
type fakeCompleter struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []domain.CompletionRequest
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)

	var err error
	if len(f.errs) > 0 {
		err = f.errs[min(i, len(f.errs)-1)]
	}
	if err != nil {
		return "", err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	return f.replies[min(i, len(f.replies)-1)], nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var noDelay = retry.Policy{Attempts: 3}

func newTestExtractor(model domain.Completer, m *metrics.Pipeline) *Extractor {
	return NewExtractor(ExtractorConfig{
		Model:       model,
		Cache:       cache.New(testLogger()),
		Retry:       noDelay,
		Temperature: 0.1,
		Metrics:     m,
		Logger:      testLogger(),
	})
}

func TestExtract_NormalizesBlankFields(t *testing.T) {
	model := &fakeCompleter{replies: []string{`{"type":"Studio","price":"","location":"  "}`}}
	ex := newTestExtractor(model, nil)

	rec, err := ex.Extract(context.Background(), "Studio near the park")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if rec.Type != "Studio" {
		t.Errorf("type: got %q", rec.Type)
	}
	for name, v := range map[string]string{"price": rec.Price, "location": rec.Location, "phone": rec.Phone} {
		if v != domain.Unknown {
			t.Errorf("%s: expected %q, got %q", name, domain.Unknown, v)
		}
	}
	req := model.requests[0]
	if req.Mode != domain.ModeJSON || req.Temperature != 0.1 {
		t.Errorf("unexpected request settings %+v", req)
	}
	if !strings.Contains(req.Prompt, "Studio near the park") {
		t.Error("prompt should embed the source text")
	}
}

func TestExtract_CacheHitSkipsModel(t *testing.T) {
	model := &fakeCompleter{replies: []string{`{"type":"Room","price":"£700","location":"Leeds","phone":"-"}`}}
	m := metrics.NewPipeline()
	ex := newTestExtractor(model, m)

	first, err := ex.Extract(context.Background(), "room in Leeds")
	if err != nil {
		t.Fatalf("first extract: %v", err)
	}
	second, err := ex.Extract(context.Background(), "room in Leeds")
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}
	if model.calls() != 1 {
		t.Fatalf("expected 1 model call, got %d", model.calls())
	}
	if *first != *second {
		t.Fatalf("cached record differs: %+v vs %+v", first, second)
	}
	if m.CacheHits.Value() != 1 || m.CacheMisses.Value() != 1 {
		t.Fatalf("hits=%d misses=%d", m.CacheHits.Value(), m.CacheMisses.Value())
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	model := &fakeCompleter{}
	ex := newTestExtractor(model, nil)

	_, err := ex.Extract(context.Background(), "   ")
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if model.calls() != 0 {
		t.Fatal("blank input must not reach the model")
	}
}

func TestExtract_ModelFailsEveryAttempt(t *testing.T) {
	boom := errors.New("quota exceeded")
	model := &fakeCompleter{errs: []error{boom}}
	m := metrics.NewPipeline()
	ex := newTestExtractor(model, m)

	_, err := ex.Extract(context.Background(), "flat in Hackney")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped model error, got %v", err)
	}
	if got := m.EnrichmentCalls.Value(); got != 3 {
		t.Fatalf("expected 3 enrichment calls, got %d", got)
	}
}

func TestExtract_InvalidJSONIsRetried(t *testing.T) {
	model := &fakeCompleter{replies: []string{"sorry, no idea", `{"type":"Flat","price":"900","location":"Bow","phone":"07700"}`}}
	ex := newTestExtractor(model, nil)

	rec, err := ex.Extract(context.Background(), "flat in Bow")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if rec.Location != "Bow" || model.calls() != 2 {
		t.Fatalf("unexpected result %+v after %d calls", rec, model.calls())
	}
}

func TestExtract_InvalidRecord(t *testing.T) {
	model := &fakeCompleter{replies: []string{"no json here"}}
	ex := newTestExtractor(model, nil)

	_, err := ex.Extract(context.Background(), "flat")
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestDecodeModelJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare object", `{"type":"Studio"}`, "Studio", false},
		{"fenced", "```json\n{\"type\":\"Room\"}\n```", "Room", false},
		{"prose around", `Here you go: {"type":"Flat"} hope it helps`, "Flat", false},
		{"trailing comma", `{"type":"House",}`, "House", false},
		{"unquoted key", `{type: "Loft"}`, "Loft", false},
		{"brace in string", `note {"type":"a}b"}`, "a}b", false},
		{"empty", "", "", true},
		{"no object", "nothing useful", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec domain.PropertyRecord
			err := decodeModelJSON(tt.input, &rec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && rec.Type != tt.want {
				t.Fatalf("type = %q, want %q", rec.Type, tt.want)
			}
		})
	}
}

func newTestGenerator(model domain.Completer, pick int) *Generator {
	return NewGenerator(GeneratorConfig{
		Model:            model,
		Retry:            noDelay,
		Temperature:      0.9,
		Contact:          testContact,
		ForbiddenPhrases: []string{"Other properties also available", "Instagram", "to", "until", "May", "2025"},
		Greetings:        []string{"Hello everyone", "Hello", "Hi", "Good day"},
		Logger:           testLogger(),
		Rand:             func(n int) int { return pick % n },
	})
}

func TestGenerate_ZeroBudgetSkipsModel(t *testing.T) {
	model := &fakeCompleter{replies: []string{"anything"}}
	g := newTestGenerator(model, 0)

	for _, req := range []Request{
		{Text: "flat", MaxLength: 0},
		{Text: "flat", MaxLength: -5},
		{Text: "  ", MaxLength: 500},
	} {
		out, err := g.Generate(context.Background(), req)
		if err != nil || out != "" {
			t.Fatalf("expected empty result, got %q, %v", out, err)
		}
	}
	if model.calls() != 0 {
		t.Fatalf("expected no model calls, got %d", model.calls())
	}
}

func TestGenerate_InjectsMissingContact(t *testing.T) {
	model := &fakeCompleter{replies: []string{"Bright studio in Bow. Rent is £900."}}
	g := newTestGenerator(model, 1)

	out, err := g.Generate(context.Background(), Request{Text: "studio", MaxLength: 974, Type: "Studio"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := "Bright studio in Bow. Rent is £900. Contact: " + testContact
	if out != want {
		t.Fatalf("got  %q\nwant %q", out, want)
	}
	if n := strings.Count(out, ContactMarker(testContact)); n != 1 {
		t.Fatalf("expected contact exactly once, found %d", n)
	}
	req := model.requests[0]
	if req.Mode != domain.ModeText || req.Temperature != 0.9 {
		t.Errorf("unexpected request settings %+v", req)
	}
	if !strings.Contains(req.Prompt, string(StyleLocationFocus)) {
		t.Error("prompt should name the chosen style")
	}
}

func TestGenerate_KeepsExistingContact(t *testing.T) {
	model := &fakeCompleter{replies: []string{"Room in Leeds. Phone: " + testContact + "."}}
	g := newTestGenerator(model, 0)

	out, err := g.Generate(context.Background(), Request{Text: "room", MaxLength: 974})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.Count(out, ContactMarker(testContact)) != 1 {
		t.Fatalf("contact duplicated: %q", out)
	}
}

func TestGenerate_FailsAfterRetries(t *testing.T) {
	model := &fakeCompleter{errs: []error{errors.New("503")}}
	g := newTestGenerator(model, 0)

	if _, err := g.Generate(context.Background(), Request{Text: "flat", MaxLength: 100}); err == nil {
		t.Fatal("expected error")
	}
	if model.calls() != 3 {
		t.Fatalf("expected 3 attempts, got %d", model.calls())
	}
}

func TestGenerate_EmptyModelOutput(t *testing.T) {
	model := &fakeCompleter{replies: []string{"   "}}
	g := newTestGenerator(model, 0)

	out, err := g.Generate(context.Background(), Request{Text: "flat", MaxLength: 100})
	if err != nil || out != "" {
		t.Fatalf("expected empty result, got %q, %v", out, err)
	}
}

func TestPostProcess(t *testing.T) {
	p := newPostProcessor(
		[]string{"Other properties also available", "Instagram", "to", "until", "May", "2025"},
		[]string{"Hello everyone", "Hello", "Hi", "Good day"},
		testContact, "", func(int) int { return 0 },
	)
	marker := ContactMarker(testContact)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops spam sentence",
			in:   "Nice flat in Bow. Other properties also available. Phone: " + testContact,
			want: "Nice flat in Bow. Phone: " + testContact,
		},
		{
			name: "single token matches whole words only",
			in:   "Close to the station. Tomato garden. Phone: " + testContact,
			want: "Tomato garden. Phone: " + testContact,
		},
		{
			name: "drops dates",
			in:   "Available in May 2025. Two bedrooms. Phone: " + testContact,
			want: "Two bedrooms. Phone: " + testContact,
		},
		{
			name: "strips greeting",
			in:   "Hello everyone. Studio in Bow. Phone: " + testContact,
			want: "Studio in Bow. Phone: " + testContact,
		},
		{
			name: "greeting is a word prefix only",
			in:   "Highgate loft. Phone: " + testContact,
			want: "Highgate loft. Phone: " + testContact,
		},
		{
			name: "lone greeting leaves only the contact",
			in:   "Hi there",
			want: "Phone: " + testContact,
		},
		{
			name: "contact restored after greeting removal",
			in:   "Hi, call " + testContact + ". Studio in Bow.",
			want: "Studio in Bow. Phone: " + testContact,
		},
		{
			name: "only contact survives filtering",
			in:   "Listed on Instagram.",
			want: "Phone: " + testContact,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.apply(tt.in)
			if got != tt.want {
				t.Fatalf("got  %q\nwant %q", got, tt.want)
			}
			if !strings.Contains(got, marker) {
				t.Fatalf("contact marker missing from %q", got)
			}
		})
	}
}

func TestFilterPhrases_CaseSensitive(t *testing.T) {
	p := newPostProcessor([]string{"May", "available from"}, nil, "", "", func(int) int { return 0 })

	got := p.filterPhrases("Move in May. Lovely garden. Available from now. available from June")
	if got != "Lovely garden. Available from now" {
		t.Fatalf("unexpected filter result %q", got)
	}
	if got := p.filterPhrases("You may view it today"); got != "You may view it today" {
		t.Fatalf("lower-case token should not match: %q", got)
	}
}

func TestContactMarker(t *testing.T) {
	if got := ContactMarker("+44 7700 900000 (Telegram)"); got != "447700900000" {
		t.Fatalf("got %q", got)
	}
	if got := ContactMarker("@agent"); got != "@agent" {
		t.Fatalf("got %q", got)
	}
}

func TestClip(t *testing.T) {
	short := "Small flat. Phone: " + testContact
	if got := Clip(short, 1024, testContact, ""); got != short {
		t.Fatalf("short caption changed: %q", got)
	}

	long := strings.Repeat("Very nice flat with a garden ", 60) + ". Phone: " + testContact
	got := Clip(long, 200, testContact, "")
	if n := utf8.RuneCountInString(got); n > 200 {
		t.Fatalf("clipped caption has %d runes", n)
	}
	if !strings.HasSuffix(got, "Phone: "+testContact) {
		t.Fatalf("contact sentence lost: %q", got)
	}
	if !strings.Contains(got, "…") {
		t.Fatalf("expected ellipsis in %q", got)
	}

	noContact := strings.Repeat("word ", 100)
	got = Clip(noContact, 50, testContact, "")
	if n := utf8.RuneCountInString(got); n > 50 {
		t.Fatalf("clip without contact exceeded limit: %d", n)
	}
	if !strings.HasSuffix(got, "Contact: "+testContact) {
		t.Fatalf("missing contact should be appended: %q", got)
	}

	if got := Clip(noContact, 50, "", ""); utf8.RuneCountInString(got) > 50 || strings.Contains(got, "Contact:") {
		t.Fatalf("clip without configured contact: %q", got)
	}
}

func TestClip_AnchorsOnMarker(t *testing.T) {
	marker := ContactMarker(testContact)
	p := newPostProcessor(nil, nil, testContact, "", func(int) int { return 0 })
	raw := strings.Repeat("Bright flat with a garden and parking ", 30) + ". Phone: +" + marker + "."
	out := p.apply(raw)
	if strings.Contains(out, testContact) {
		t.Fatalf("marker already present, no injection expected: %q", out)
	}

	got := Clip(out, 1024, testContact, "")
	if n := utf8.RuneCountInString(got); n > 1024 {
		t.Fatalf("clipped caption has %d runes", n)
	}
	if !strings.HasSuffix(got, "Phone: +"+marker+".") {
		t.Fatalf("contact sentence lost: %q", got[len(got)-80:])
	}

	// A marker inside the only sentence keeps the whole contact word.
	single := strings.Repeat("garden ", 200) + "+" + marker
	got = Clip(single, 100, testContact, marker)
	if utf8.RuneCountInString(got) > 100 || !strings.HasSuffix(got, "+"+marker) {
		t.Fatalf("unexpected clip %q", got)
	}

	// A contact sentence longer than the limit gives way to a short one.
	huge := "Intro. Call " + strings.Repeat("now ", 40) + marker
	got = Clip(huge, 60, testContact, "")
	if utf8.RuneCountInString(got) > 60 || !strings.Contains(got, marker) {
		t.Fatalf("unexpected clip %q", got)
	}
}
