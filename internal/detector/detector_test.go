package detector

import (
	"testing"

	"github.com/kalambet/meetsync/internal/payload"
)

func testConfig() Config {
	return Config{
		DefaultLabel: "Unknown",
		Organizations: []Organization{
			{
				Name:           "Acme",
				TitleKeywords:  []string{"acme", "roadrunner"},
				EmailDomains:   []string{"acme.com"},
				EmailAddresses: []string{"consultant@gmail.com"},
				CompanyNames:   []string{"Acme Corp"},
			},
			{
				Name:          "Globex",
				TitleKeywords: []string{"globex"},
				EmailDomains:  []string{"globex.io"},
				CompanyNames:  []string{"Globex"},
			},
		},
	}
}

func attendees(emails ...string) []payload.CalendarPerson {
	out := make([]payload.CalendarPerson, len(emails))
	for i, e := range emails {
		out[i] = payload.CalendarPerson{Email: e}
	}
	return out
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name           string
		doc            payload.Document
		wantName       string
		wantConfidence float64
		wantSignals    payload.SignalFlags
	}{
		{
			name: "calendar domain match",
			doc: payload.Document{
				Title: "Weekly sync",
				CalendarEvent: &payload.CalendarEvent{
					Attendees: attendees("alice@acme.com", "bob@example.com"),
				},
			},
			wantName:       "Acme",
			wantConfidence: 0.9,
			wantSignals:    payload.SignalFlags{CalendarMatch: true},
		},
		{
			name: "calendar exact address match",
			doc: payload.Document{
				CalendarEvent: &payload.CalendarEvent{
					Attendees: attendees("consultant@gmail.com"),
				},
			},
			wantName:       "Acme",
			wantConfidence: 0.9,
			wantSignals:    payload.SignalFlags{CalendarMatch: true},
		},
		{
			name: "calendar tie broken by attendee count",
			doc: payload.Document{
				CalendarEvent: &payload.CalendarEvent{
					Creator: &payload.CalendarPerson{Email: "x@acme.com"},
					Attendees: attendees(
						"a@globex.io", "b@globex.io", "c@globex.io",
					),
				},
			},
			wantName:       "Globex",
			wantConfidence: 0.9,
			wantSignals:    payload.SignalFlags{CalendarMatch: true},
		},
		{
			name: "calendar beats title",
			doc: payload.Document{
				Title: "Globex quarterly review",
				CalendarEvent: &payload.CalendarEvent{
					Attendees: attendees("alice@acme.com"),
				},
			},
			wantName:       "Acme",
			wantConfidence: 0.9,
			wantSignals:    payload.SignalFlags{CalendarMatch: true},
		},
		{
			name:           "title keyword match is case-insensitive",
			doc:            payload.Document{Title: "ACME kickoff"},
			wantName:       "Acme",
			wantConfidence: 0.7,
			wantSignals:    payload.SignalFlags{TitleMatch: true},
		},
		{
			name: "title beats company",
			doc: payload.Document{
				Title: "globex planning",
				People: &payload.People{
					Attendees: []payload.Person{{Email: "a@x.com", CompanyName: "Acme Corp"}},
				},
			},
			wantName:       "Globex",
			wantConfidence: 0.7,
			wantSignals:    payload.SignalFlags{TitleMatch: true},
		},
		{
			name: "company metadata match",
			doc: payload.Document{
				Title: "Untitled meeting",
				People: &payload.People{
					Creator: &payload.Person{Email: "a@x.com", CompanyName: "acme corp"},
				},
			},
			wantName:       "Acme",
			wantConfidence: 0.6,
			wantSignals:    payload.SignalFlags{CompanyMatch: true},
		},
		{
			name: "no match falls back to default",
			doc: payload.Document{
				Title: "1:1",
				CalendarEvent: &payload.CalendarEvent{
					Attendees: attendees("someone@example.com"),
				},
			},
			wantName:       "Unknown",
			wantConfidence: 0,
			wantSignals:    payload.SignalFlags{},
		},
		{
			name:           "empty document",
			doc:            payload.Document{},
			wantName:       "Unknown",
			wantConfidence: 0,
			wantSignals:    payload.SignalFlags{},
		},
	}

	cfg := testConfig()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(&tt.doc, cfg)
			if got.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tt.wantName)
			}
			if got.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
			if got.Signals != tt.wantSignals {
				t.Errorf("Signals = %+v, want %+v", got.Signals, tt.wantSignals)
			}
		})
	}
}

func TestDetect_Deterministic(t *testing.T) {
	cfg := testConfig()
	doc := payload.Document{
		Title: "acme x globex",
		CalendarEvent: &payload.CalendarEvent{
			Attendees: attendees("a@acme.com", "b@globex.io"),
		},
	}
	first := Detect(&doc, cfg)
	for i := 0; i < 10; i++ {
		if got := Detect(&doc, cfg); got != first {
			t.Fatalf("run %d: Detect = %+v, want %+v", i, got, first)
		}
	}
}
