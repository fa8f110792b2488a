package domain

import (
	"sort"
	"strings"
	"time"
)

// MediaKind names the attachment type of an inbound item.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaAudio     MediaKind = "audio"
	MediaAnimation MediaKind = "animation"
)

// Media is a reference to an attachment already stored by the transport.
type Media struct {
	Kind   MediaKind
	FileID string
}

// Item is one raw message received from the source feed.
type Item struct {
	MessageID   int    // sequence id within the source chat
	ChatID      int64  // source chat
	GroupKey    string // album identifier, empty for standalone posts
	Text        string
	Caption     string
	Media       *Media
	ReplyMarkup any // transport-specific, passed back untouched
	ReceivedAt  time.Time
}

// SourceText returns the text or, failing that, the caption of the item.
func (it Item) SourceText() string {
	if strings.TrimSpace(it.Text) != "" {
		return it.Text
	}
	return it.Caption
}

// Unit is one flush-worthy group of related messages: a single post or a
// completed album.
type Unit struct {
	ID       string
	GroupKey string
	Items    []Item
}

// IsAlbum reports whether the unit came out of album aggregation.
func (u Unit) IsAlbum() bool { return u.GroupKey != "" }

// First returns the first item in sequence order.
func (u Unit) First() Item {
	if len(u.Items) == 0 {
		return Item{}
	}
	return u.Items[0]
}

// HasMedia reports whether the first item carries an attachment. The first
// item decides the caption budget for the whole unit.
func (u Unit) HasMedia() bool {
	return u.First().Media != nil
}

// SourceText picks the text enrichment runs on: the first non-empty caption
// for albums, the text or caption for single posts.
func (u Unit) SourceText() string {
	if !u.IsAlbum() {
		return strings.TrimSpace(u.First().SourceText())
	}
	for _, it := range u.Items {
		if c := strings.TrimSpace(it.Caption); c != "" {
			return c
		}
	}
	return ""
}

// MessageIDs lists the ids of all items, in unit order.
func (u Unit) MessageIDs() []int {
	ids := make([]int, len(u.Items))
	for i, it := range u.Items {
		ids[i] = it.MessageID
	}
	return ids
}

// SortItems orders items by ascending message id.
func SortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].MessageID < items[j].MessageID
	})
}
