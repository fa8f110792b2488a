package domain

import (
	"encoding/json"
	"testing"
)

func TestPropertyRecord_UnmarshalNormalizes(t *testing.T) {
	var r PropertyRecord
	data := `{"type":"Studio","price":1200,"location":"  ","phone":null}`
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Type != "Studio" {
		t.Errorf("type: got %q", r.Type)
	}
	if r.Price != "1200" {
		t.Errorf("numeric price should keep its text form, got %q", r.Price)
	}
	if r.Location != Unknown || r.Phone != Unknown {
		t.Errorf("blank fields should become %q, got %+v", Unknown, r)
	}
	if !r.Complete() {
		t.Error("normalized record should be complete")
	}
}

func TestPropertyRecord_MissingKeys(t *testing.T) {
	var r PropertyRecord
	if err := json.Unmarshal([]byte(`{"type":"Room"}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Price != Unknown || r.Location != Unknown || r.Phone != Unknown {
		t.Fatalf("missing keys should become %q, got %+v", Unknown, r)
	}
}

func TestPropertyRecord_NotAnObject(t *testing.T) {
	var r PropertyRecord
	if err := json.Unmarshal([]byte(`["a"]`), &r); err == nil {
		t.Fatal("expected error for array input")
	}
}

func TestPropertyRecord_Complete(t *testing.T) {
	r := PropertyRecord{Type: "Flat", Price: "900", Location: "Leeds"}
	if r.Complete() {
		t.Fatal("record with blank phone should not be complete")
	}
	r.Normalize()
	if !r.Complete() || r.Phone != Unknown {
		t.Fatalf("normalize should fill phone, got %+v", r)
	}
}

func TestUnit_SourceText(t *testing.T) {
	single := Unit{Items: []Item{{Text: "  Flat to rent  "}}}
	if got := single.SourceText(); got != "Flat to rent" {
		t.Errorf("single text: got %q", got)
	}

	captioned := Unit{Items: []Item{{Caption: "Room", Media: &Media{Kind: MediaPhoto, FileID: "f"}}}}
	if got := captioned.SourceText(); got != "Room" {
		t.Errorf("single caption: got %q", got)
	}
	if !captioned.HasMedia() {
		t.Error("captioned photo should report media")
	}

	album := Unit{GroupKey: "g", Items: []Item{
		{MessageID: 1, Caption: " "},
		{MessageID: 2, Caption: "Two bed house"},
		{MessageID: 3, Caption: "ignored"},
	}}
	if got := album.SourceText(); got != "Two bed house" {
		t.Errorf("album: got %q", got)
	}

	empty := Unit{GroupKey: "g", Items: []Item{{MessageID: 1}}}
	if got := empty.SourceText(); got != "" {
		t.Errorf("album without captions: got %q", got)
	}
}

func TestUnit_EmptyItems(t *testing.T) {
	var u Unit
	if u.HasMedia() || u.SourceText() != "" || len(u.MessageIDs()) != 0 {
		t.Fatal("empty unit should be inert")
	}
}

func TestSortItems(t *testing.T) {
	items := []Item{{MessageID: 3}, {MessageID: 1}, {MessageID: 2}}
	SortItems(items)
	u := Unit{Items: items}
	ids := u.MessageIDs()
	for i, want := range []int{1, 2, 3} {
		if ids[i] != want {
			t.Fatalf("position %d: got %d want %d", i, ids[i], want)
		}
	}
}
