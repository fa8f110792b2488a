package enrich

import (
	"fmt"
	"strings"
)

// Style selects the sentence structure of a generated listing.
type Style string

const (
	StyleNeutralStory  Style = "neutral_story"
	StyleLocationFocus Style = "location_focus"
	StyleComfortFocus  Style = "comfort_focus"
)

// Styles lists every style the generator picks from.
var Styles = []Style{StyleNeutralStory, StyleLocationFocus, StyleComfortFocus}

func extractionPrompt(text string) string {
	return fmt.Sprintf(`Analyze this property rental listing text.
Extract the key facts and return them as a single JSON object.

Fields:
1. "type": property type, e.g. "2-bedroom flat", "Studio", "Room". Keep it short.
2. "price": the price, number and currency only.
3. "location": area or address, e.g. "Stratford", "London, E15".
4. "phone": the contact phone number as written in the text.

Rules:
- If a field cannot be found, set it to "-".
- Respond with the JSON object only, no commentary.

Text:
---
%s
---`, text)
}

func generationPrompt(req Request, style Style, contact string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short property rental listing for Telegram in English.\n\n")
	fmt.Fprintf(&b, "INPUT:\n- Property type: %s\n- Location: %s\n- Price: %s\n- Details: %s\n\n",
		req.Type, req.Location, req.Price, req.Text)

	b.WriteString(`TONE:
- Write plainly, the way a friend would describe a flat they are letting.
- Impersonal: use "Available", "For rent", "To let". Never write in the first person.
- No estate agent cliches ("perfect choice", "exquisite apartment", "stunning views", "great opportunity").
- No social media, languages spoken or other services.

`)
	fmt.Fprintf(&b, "STRUCTURE (%s):\n", style)
	switch style {
	case StyleLocationFocus:
		fmt.Fprintf(&b, "Open with the location: \"In %s, %s available. [Description]. Rent %s. Contact: %s.\"\n\n",
			req.Location, req.Type, req.Price, contact)
	case StyleComfortFocus:
		fmt.Fprintf(&b, "Lead with the amenities: \"%s with [amenities]. Located in %s, %s per month. Contact: %s.\"\n\n",
			req.Type, req.Location, req.Price, contact)
	default:
		fmt.Fprintf(&b, "A plain story: \"%s available in %s. [Brief amenities]. Rent is %s. Phone: %s.\"\n\n",
			req.Type, req.Location, req.Price, contact)
	}

	fmt.Fprintf(&b, `RULES:
- Do not mention availability dates, even if the details contain them.
- At most %d characters.
- No emoji and no decorative symbols.
- Exactly one contact line: %s

Reply with the listing text only.`, req.MaxLength, contact)
	return b.String()
}
