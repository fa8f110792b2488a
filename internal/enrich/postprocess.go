package enrich

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Connectors introduce an injected contact line.
var Connectors = []string{"Phone:", "Contact:", "Tel:"}

// postProcessor cleans generated text before it is published.
type postProcessor struct {
	phrases   []phraseMatcher
	greetings []string
	contact   string
	marker    string
	pick      func(n int) int
}

// phraseMatcher matches multi-word phrases as substrings and single tokens
// ("to", "May", "2025") as whole words only.
type phraseMatcher struct {
	phrase string
	word   *regexp.Regexp
}

func newPhraseMatcher(phrase string) phraseMatcher {
	m := phraseMatcher{phrase: phrase}
	if !strings.ContainsAny(phrase, " \t") {
		m.word = regexp.MustCompile(`(^|[^\p{L}\p{N}])` + regexp.QuoteMeta(phrase) + `($|[^\p{L}\p{N}])`)
	}
	return m
}

func (m phraseMatcher) in(s string) bool {
	if m.word != nil {
		return m.word.MatchString(s)
	}
	return strings.Contains(s, m.phrase)
}

func newPostProcessor(phrases, greetings []string, contact, marker string, pick func(int) int) *postProcessor {
	p := &postProcessor{
		greetings: greetings,
		contact:   contact,
		marker:    marker,
		pick:      pick,
	}
	for _, ph := range phrases {
		if strings.TrimSpace(ph) == "" {
			continue
		}
		p.phrases = append(p.phrases, newPhraseMatcher(ph))
	}
	if p.marker == "" {
		p.marker = ContactMarker(contact)
	}
	return p
}

// apply runs phrase filtering, contact injection and greeting removal, in
// that order. The result always carries the contact marker.
func (p *postProcessor) apply(text string) string {
	text = p.filterPhrases(strings.TrimSpace(text))
	text = p.ensureContact(text)
	if stripped, ok := p.stripGreeting(text); ok {
		text = p.ensureContact(stripped)
	}
	return text
}

// filterPhrases drops every '.'-separated sentence that contains a
// forbidden phrase.
func (p *postProcessor) filterPhrases(text string) string {
	for _, m := range p.phrases {
		if !m.in(text) {
			continue
		}
		sentences := strings.Split(text, ".")
		kept := sentences[:0]
		for _, s := range sentences {
			if !m.in(s) {
				kept = append(kept, s)
			}
		}
		text = strings.Join(kept, ".")
	}
	return strings.TrimSpace(text)
}

func (p *postProcessor) ensureContact(text string) string {
	if p.contact == "" || strings.Contains(text, p.marker) {
		return text
	}
	connector := Connectors[p.pick(len(Connectors))]
	body := strings.TrimSpace(strings.TrimRight(text, ". "))
	if body == "" {
		return connector + " " + p.contact
	}
	return body + ". " + connector + " " + p.contact
}

// stripGreeting removes a leading greeting sentence when another sentence
// follows it.
func (p *postProcessor) stripGreeting(text string) (string, bool) {
	stripped := false
	for _, g := range p.greetings {
		if !hasGreeting(text, g) {
			continue
		}
		_, rest, found := strings.Cut(text, ".")
		rest = strings.TrimSpace(rest)
		if !found || rest == "" {
			continue
		}
		text = rest
		stripped = true
	}
	return text, stripped
}

// hasGreeting reports a case-insensitive greeting prefix that ends at a word
// boundary, so "Hi" does not match "Highgate".
func hasGreeting(text, greeting string) bool {
	if greeting == "" || len(text) < len(greeting) {
		return false
	}
	if !strings.EqualFold(text[:len(greeting)], greeting) {
		return false
	}
	if len(text) == len(greeting) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[len(greeting):])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// ContactMarker derives the substring that proves a contact is present: its
// digits, or the contact itself when it has none.
func ContactMarker(contact string) string {
	var b strings.Builder
	for _, r := range contact {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return contact
	}
	return b.String()
}

// Clip shortens caption to at most limit runes. The sentence carrying the
// contact marker is kept whole and the body is cut at a word boundary in
// front of it, marked with an ellipsis. When that sentence cannot fit, or the
// caption has no marker at all, a short "Contact: <contact>" line takes its
// place. An empty marker defaults to ContactMarker(contact).
func Clip(caption string, limit int, contact, marker string) string {
	if limit <= 0 || utf8.RuneCountInString(caption) <= limit {
		return caption
	}
	if marker == "" {
		marker = ContactMarker(contact)
	}

	body, tail := caption, ""
	if marker != "" {
		if i := strings.LastIndex(caption, marker); i >= 0 {
			cut := strings.LastIndex(caption[:i], ". ")
			if cut >= 0 {
				body, tail = caption[:cut+1], caption[cut+2:]
			} else {
				cut = strings.LastIndexByte(caption[:i], ' ') + 1
				body, tail = caption[:cut], caption[cut:]
			}
		}
	}
	tail = strings.TrimSpace(tail)
	if contact != "" && (tail == "" || utf8.RuneCountInString(tail) >= limit) {
		tail = "Contact: " + contact
	}

	room := limit
	if tail != "" {
		room -= utf8.RuneCountInString(tail) + 1
	}
	if room <= 0 {
		return truncateRunes(tail, limit)
	}

	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) > room {
		body = truncateRunes(body, room-1)
		if i := strings.LastIndexByte(body, ' '); i > 0 {
			body = body[:i]
		}
		body = strings.TrimRight(body, " ,;:") + "…"
	}
	if tail == "" {
		return body
	}
	if body == "" {
		return tail
	}
	return body + " " + tail
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
