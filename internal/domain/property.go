package domain

import (
	"encoding/json"
	"strings"
)

// Unknown is the sentinel stored in a PropertyRecord field the model could
// not fill. It is never an empty string.
const Unknown = "-"

// PropertyRecord is the structured data extracted from a listing text.
type PropertyRecord struct {
	Type     string `json:"type"`
	Price    string `json:"price"`
	Location string `json:"location"`
	Phone    string `json:"phone"`
}

// Normalize replaces blank or whitespace-only fields with Unknown and trims
// the rest.
func (r *PropertyRecord) Normalize() {
	r.Type = orUnknown(r.Type)
	r.Price = orUnknown(r.Price)
	r.Location = orUnknown(r.Location)
	r.Phone = orUnknown(r.Phone)
}

// Complete reports whether every field holds a non-blank value.
func (r PropertyRecord) Complete() bool {
	for _, v := range []string{r.Type, r.Price, r.Location, r.Phone} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// UnmarshalJSON decodes the record and normalizes it, so a decoded record
// never carries a blank field. Non-string scalars (numbers for price) are
// kept in their JSON text form.
func (r *PropertyRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Type = rawString(raw["type"])
	r.Price = rawString(raw["price"])
	r.Location = rawString(raw["location"])
	r.Phone = rawString(raw["phone"])
	r.Normalize()
	return nil
}

func rawString(v json.RawMessage) string {
	if len(v) == 0 || string(v) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(v)
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown
	}
	return s
}
