// Package channel connects the pipeline to the Telegram Bot API.
package channel

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"listingbot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultPollTimeout = 30

var _ domain.Publisher = (*Telegram)(nil)

// botClient is the subset of *tgbotapi.BotAPI the channel uses.
type botClient interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	CopyMessage(c tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error)
	SendMediaGroup(c tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	GetUpdatesChan(c tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram reads channel posts from the source chat and republishes into
// the target chat. It implements domain.Publisher.
type Telegram struct {
	token        string
	sourceChatID int64
	parseMode    string
	pollTimeout  int

	bot    botClient
	logger *slog.Logger
}

type TelegramConfig struct {
	Token        string
	SourceChatID int64
	ParseMode    string // "HTML" or "" for plain text
	PollTimeout  int    // long-poll timeout in seconds
	Logger       *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	return &Telegram{
		token:        cfg.Token,
		sourceChatID: cfg.SourceChatID,
		parseMode:    cfg.ParseMode,
		pollTimeout:  cfg.PollTimeout,
		logger:       cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Connect authenticates the bot and discards updates queued while it was
// offline. It must be called before publishing or Start.
func (t *Telegram) Connect() error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("telegram drop pending updates: %w", err)
	}
	return nil
}

// Start long-polls channel posts and publishes those from the source chat
// on bus until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.ItemBus) error {
	if t.bot == nil {
		return errors.New("telegram: not connected")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	u.AllowedUpdates = []string{"channel_post"}
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started", "source_chat", t.sourceChatID)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update, bus)
		}
	}
}

func (t *Telegram) handleUpdate(update tgbotapi.Update, bus domain.ItemBus) {
	msg := update.ChannelPost
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.Chat.ID != t.sourceChatID {
		t.logger.Debug("ignoring post from other chat", "chat_id", msg.Chat.ID)
		return
	}

	item := toItem(msg)
	t.logger.Info("channel post received",
		"message_id", item.MessageID,
		"group", item.GroupKey,
		"has_media", item.Media != nil,
	)
	bus.Publish(item)
}

// toItem converts a Telegram message into a transport-neutral item.
func toItem(msg *tgbotapi.Message) domain.Item {
	item := domain.Item{
		MessageID:  msg.MessageID,
		GroupKey:   msg.MediaGroupID,
		Text:       msg.Text,
		Caption:    msg.Caption,
		Media:      mediaOf(msg),
		ReceivedAt: time.Unix(int64(msg.Date), 0),
	}
	if msg.Chat != nil {
		item.ChatID = msg.Chat.ID
	}
	if msg.ReplyMarkup != nil {
		item.ReplyMarkup = *msg.ReplyMarkup
	}
	return item
}

func mediaOf(msg *tgbotapi.Message) *domain.Media {
	switch {
	case len(msg.Photo) > 0:
		// Sizes are ordered smallest first.
		return &domain.Media{Kind: domain.MediaPhoto, FileID: msg.Photo[len(msg.Photo)-1].FileID}
	case msg.Video != nil:
		return &domain.Media{Kind: domain.MediaVideo, FileID: msg.Video.FileID}
	case msg.Animation != nil:
		// Checked before Document: animations carry both.
		return &domain.Media{Kind: domain.MediaAnimation, FileID: msg.Animation.FileID}
	case msg.Document != nil:
		return &domain.Media{Kind: domain.MediaDocument, FileID: msg.Document.FileID}
	case msg.Audio != nil:
		return &domain.Media{Kind: domain.MediaAudio, FileID: msg.Audio.FileID}
	}
	return nil
}

// CopyMessage copies a message into the target chat. A nil caption keeps
// the original one.
func (t *Telegram) CopyMessage(ctx context.Context, req domain.CopyRequest) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	cfg := tgbotapi.NewCopyMessage(req.TargetChatID, req.FromChatID, req.MessageID)
	if req.Caption != nil {
		cfg.Caption = *req.Caption
		cfg.ParseMode = t.parseMode
	}
	if markup, ok := inlineMarkup(req.ReplyMarkup); ok {
		cfg.ReplyMarkup = markup
	}

	_, err := t.bot.CopyMessage(cfg)
	if err != nil && cfg.ParseMode != "" && isParseError(err) {
		t.logger.Warn("caption rejected by parser, copying as plain text", "message_id", req.MessageID, "err", err)
		cfg.Caption, cfg.ParseMode = t.plain(cfg.Caption), ""
		_, err = t.bot.CopyMessage(cfg)
	}
	if err != nil {
		return fmt.Errorf("telegram copy message %d: %w", req.MessageID, err)
	}
	return nil
}

// SendText posts a new text message into the target chat.
func (t *Telegram) SendText(ctx context.Context, req domain.TextRequest) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(req.TargetChatID, req.Text)
	msg.ParseMode = t.parseMode
	if markup, ok := inlineMarkup(req.ReplyMarkup); ok {
		msg.ReplyMarkup = markup
	}

	_, err := t.bot.Send(msg)
	if err != nil && msg.ParseMode != "" && isParseError(err) {
		t.logger.Warn("text rejected by parser, sending as plain text", "err", err)
		msg.Text, msg.ParseMode = t.plain(msg.Text), ""
		_, err = t.bot.Send(msg)
	}
	if err != nil {
		return fmt.Errorf("telegram send text: %w", err)
	}
	return nil
}

// SendMediaGroup posts an album in one call. Captions are set per element;
// empty captions are left off.
func (t *Telegram) SendMediaGroup(ctx context.Context, req domain.MediaGroupRequest) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	if len(req.Media) == 0 {
		return errors.New("telegram send media group: no media")
	}

	files := make([]interface{}, 0, len(req.Media))
	for i, m := range req.Media {
		f, err := t.inputMedia(m)
		if err != nil {
			return fmt.Errorf("telegram send media group: item %d: %w", i, err)
		}
		files = append(files, f)
	}

	if _, err := t.bot.SendMediaGroup(tgbotapi.NewMediaGroup(req.TargetChatID, files)); err != nil {
		return fmt.Errorf("telegram send media group: %w", err)
	}
	return nil
}

func (t *Telegram) inputMedia(m domain.OutboundMedia) (interface{}, error) {
	file := tgbotapi.FileID(m.Media.FileID)
	caption, mode := m.Caption, ""
	if caption != "" {
		mode = t.parseMode
	}

	switch m.Media.Kind {
	case domain.MediaPhoto:
		p := tgbotapi.NewInputMediaPhoto(file)
		p.Caption, p.ParseMode = caption, mode
		return p, nil
	case domain.MediaVideo:
		v := tgbotapi.NewInputMediaVideo(file)
		v.Caption, v.ParseMode = caption, mode
		return v, nil
	case domain.MediaDocument:
		d := tgbotapi.NewInputMediaDocument(file)
		d.Caption, d.ParseMode = caption, mode
		return d, nil
	case domain.MediaAudio:
		a := tgbotapi.NewInputMediaAudio(file)
		a.Caption, a.ParseMode = caption, mode
		return a, nil
	}
	return nil, fmt.Errorf("media kind %q cannot be part of an album", m.Media.Kind)
}

func (t *Telegram) ready(ctx context.Context) error {
	if t.bot == nil {
		return errors.New("telegram: not connected")
	}
	return ctx.Err()
}

func inlineMarkup(v any) (tgbotapi.InlineKeyboardMarkup, bool) {
	switch m := v.(type) {
	case tgbotapi.InlineKeyboardMarkup:
		return m, len(m.InlineKeyboard) > 0
	case *tgbotapi.InlineKeyboardMarkup:
		if m == nil {
			return tgbotapi.InlineKeyboardMarkup{}, false
		}
		return *m, len(m.InlineKeyboard) > 0
	}
	return tgbotapi.InlineKeyboardMarkup{}, false
}

// plain undoes the HTML escaping of an outgoing text so it reads the same
// without a parse mode.
func (t *Telegram) plain(s string) string {
	if strings.EqualFold(t.parseMode, tgbotapi.ModeHTML) {
		return html.UnescapeString(s)
	}
	return s
}

func isParseError(err error) bool {
	return strings.Contains(err.Error(), "can't parse entities")
}
