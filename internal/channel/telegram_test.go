package channel

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"listingbot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeBot records outgoing calls. copyErrs and sendErrs are consumed in order.
type fakeBot struct {
	copies   []tgbotapi.CopyMessageConfig
	sends    []tgbotapi.Chattable
	groups   []tgbotapi.MediaGroupConfig
	copyErrs []error
	sendErrs []error
	groupErr error
}

func (f *fakeBot) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sends = append(f.sends, c)
	return tgbotapi.Message{}, pop(&f.sendErrs)
}

func (f *fakeBot) CopyMessage(c tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error) {
	f.copies = append(f.copies, c)
	return tgbotapi.MessageID{}, pop(&f.copyErrs)
}

func (f *fakeBot) SendMediaGroup(c tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.groups = append(f.groups, c)
	return nil, f.groupErr
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

type fakeBus struct{ items []domain.Item }

func (b *fakeBus) Publish(it domain.Item) { b.items = append(b.items, it) }
func (b *fakeBus) Subscribe() <-chan domain.Item { return nil }
func (b *fakeBus) Close() {}

func newTestTelegram(bot *fakeBot) *Telegram {
	t := NewTelegram(TelegramConfig{SourceChatID: -100, ParseMode: "HTML", Logger: testLogger()})
	t.bot = bot
	return t
}

func TestToItem(t *testing.T) {
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("Book", "https://example.com"),
	))
	msg := &tgbotapi.Message{
		MessageID:    42,
		Chat:         &tgbotapi.Chat{ID: -100},
		MediaGroupID: "album-1",
		Caption:      "Two bed flat",
		Date:         1700000000,
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90},
			{FileID: "large", Width: 1280},
		},
		ReplyMarkup: &markup,
	}

	it := toItem(msg)
	if it.MessageID != 42 || it.ChatID != -100 || it.GroupKey != "album-1" || it.Caption != "Two bed flat" {
		t.Fatalf("unexpected item %+v", it)
	}
	if it.Media == nil || it.Media.Kind != domain.MediaPhoto || it.Media.FileID != "large" {
		t.Fatalf("expected largest photo, got %+v", it.Media)
	}
	if _, ok := it.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); !ok {
		t.Fatalf("reply markup not carried: %T", it.ReplyMarkup)
	}
	if it.ReceivedAt.Unix() != 1700000000 {
		t.Fatalf("unexpected timestamp %v", it.ReceivedAt)
	}
}

func TestMediaOf(t *testing.T) {
	tests := []struct {
		name string
		msg  tgbotapi.Message
		want domain.MediaKind
	}{
		{"video", tgbotapi.Message{Video: &tgbotapi.Video{FileID: "v"}}, domain.MediaVideo},
		{"animation wins over document", tgbotapi.Message{
			Animation: &tgbotapi.Animation{FileID: "a"},
			Document:  &tgbotapi.Document{FileID: "d"},
		}, domain.MediaAnimation},
		{"document", tgbotapi.Message{Document: &tgbotapi.Document{FileID: "d"}}, domain.MediaDocument},
		{"audio", tgbotapi.Message{Audio: &tgbotapi.Audio{FileID: "au"}}, domain.MediaAudio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mediaOf(&tt.msg)
			if m == nil || m.Kind != tt.want {
				t.Fatalf("got %+v, want kind %s", m, tt.want)
			}
		})
	}
	if mediaOf(&tgbotapi.Message{Text: "plain"}) != nil {
		t.Fatal("text message should have no media")
	}
}

func TestHandleUpdate_FiltersSourceChat(t *testing.T) {
	tg := newTestTelegram(&fakeBot{})
	bus := &fakeBus{}

	tg.handleUpdate(tgbotapi.Update{ChannelPost: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: -100}, Text: "hi"}}, bus)
	tg.handleUpdate(tgbotapi.Update{ChannelPost: &tgbotapi.Message{MessageID: 2, Chat: &tgbotapi.Chat{ID: -999}, Text: "other"}}, bus)
	tg.handleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: -100}}}, bus)

	if len(bus.items) != 1 || bus.items[0].MessageID != 1 {
		t.Fatalf("expected only the source channel post, got %+v", bus.items)
	}
}

func TestCopyMessage_CaptionOverride(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(bot)
	caption := "New caption"
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("Book", "https://example.com"),
	))

	err := tg.CopyMessage(context.Background(), domain.CopyRequest{
		TargetChatID: -200, FromChatID: -100, MessageID: 7, Caption: &caption, ReplyMarkup: markup,
	})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	c := bot.copies[0]
	if c.ChatID != -200 || c.FromChatID != -100 || c.MessageID != 7 {
		t.Fatalf("unexpected copy target %+v", c)
	}
	if c.Caption != caption || c.ParseMode != "HTML" {
		t.Fatalf("caption override missing: %q %q", c.Caption, c.ParseMode)
	}
	if c.ReplyMarkup == nil {
		t.Fatal("reply markup should be preserved")
	}
}

func TestCopyMessage_VerbatimKeepsCaption(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(bot)

	if err := tg.CopyMessage(context.Background(), domain.CopyRequest{TargetChatID: -200, FromChatID: -100, MessageID: 7}); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if c := bot.copies[0]; c.Caption != "" || c.ParseMode != "" || c.ReplyMarkup != nil {
		t.Fatalf("verbatim copy should not override anything: %+v", c)
	}
}

func TestCopyMessage_ParseErrorFallsBackToPlain(t *testing.T) {
	bot := &fakeBot{copyErrs: []error{errors.New("Bad Request: can't parse entities")}}
	tg := newTestTelegram(bot)
	caption := "<b>broken"

	if err := tg.CopyMessage(context.Background(), domain.CopyRequest{MessageID: 1, Caption: &caption}); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if len(bot.copies) != 2 || bot.copies[1].ParseMode != "" {
		t.Fatalf("expected a plain-text second attempt, got %+v", bot.copies)
	}
}

func TestParseErrorFallback_UnescapesHTML(t *testing.T) {
	bot := &fakeBot{
		copyErrs: []error{errors.New("Bad Request: can't parse entities")},
		sendErrs: []error{errors.New("Bad Request: can't parse entities")},
	}
	tg := newTestTelegram(bot)
	caption := "Garden &amp; parking &lt;3 min to tube&gt;"

	if err := tg.CopyMessage(context.Background(), domain.CopyRequest{MessageID: 1, Caption: &caption}); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if got := bot.copies[1].Caption; got != "Garden & parking <3 min to tube>" {
		t.Fatalf("plain copy caption still escaped: %q", got)
	}

	if err := tg.SendText(context.Background(), domain.TextRequest{TargetChatID: -200, Text: caption}); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := bot.sends[1].(tgbotapi.MessageConfig)
	if msg.Text != "Garden & parking <3 min to tube>" || msg.ParseMode != "" {
		t.Fatalf("plain text resend wrong: %+v", msg)
	}
}

func TestCopyMessage_OtherErrorsAreNotRetried(t *testing.T) {
	bot := &fakeBot{copyErrs: []error{errors.New("Forbidden: bot is not a member")}}
	tg := newTestTelegram(bot)

	err := tg.CopyMessage(context.Background(), domain.CopyRequest{MessageID: 1})
	if err == nil || !strings.Contains(err.Error(), "Forbidden") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if len(bot.copies) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(bot.copies))
	}
}

func TestSendText(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(bot)

	if err := tg.SendText(context.Background(), domain.TextRequest{TargetChatID: -200, Text: "Flat in Bow"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg, ok := bot.sends[0].(tgbotapi.MessageConfig)
	if !ok || msg.Text != "Flat in Bow" || msg.ChatID != -200 || msg.ParseMode != "HTML" {
		t.Fatalf("unexpected message %+v", bot.sends[0])
	}
}

func TestSendMediaGroup(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(bot)

	err := tg.SendMediaGroup(context.Background(), domain.MediaGroupRequest{
		TargetChatID: -200,
		Media: []domain.OutboundMedia{
			{Media: domain.Media{Kind: domain.MediaPhoto, FileID: "p1"}, Caption: "Caption"},
			{Media: domain.Media{Kind: domain.MediaVideo, FileID: "v2"}},
		},
	})
	if err != nil {
		t.Fatalf("send group: %v", err)
	}
	g := bot.groups[0]
	if g.ChatID != -200 || len(g.Media) != 2 {
		t.Fatalf("unexpected group %+v", g)
	}
	first, ok := g.Media[0].(tgbotapi.InputMediaPhoto)
	if !ok || first.Caption != "Caption" || first.ParseMode != "HTML" {
		t.Fatalf("unexpected first element %+v", g.Media[0])
	}
	second, ok := g.Media[1].(tgbotapi.InputMediaVideo)
	if !ok || second.Caption != "" || second.ParseMode != "" {
		t.Fatalf("unexpected second element %+v", g.Media[1])
	}
}

func TestSendMediaGroup_RejectsAnimation(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(bot)

	err := tg.SendMediaGroup(context.Background(), domain.MediaGroupRequest{
		Media: []domain.OutboundMedia{{Media: domain.Media{Kind: domain.MediaAnimation, FileID: "a"}}},
	})
	if err == nil {
		t.Fatal("expected error for animation in album")
	}
	if len(bot.groups) != 0 {
		t.Fatal("nothing should be sent")
	}
}

func TestPublisher_NotConnected(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Logger: testLogger()})
	if err := tg.SendText(context.Background(), domain.TextRequest{Text: "x"}); err == nil {
		t.Fatal("expected error before Connect")
	}
}
