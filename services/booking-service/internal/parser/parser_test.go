package parser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

func TestKeywordParser(t *testing.T) {
	now := time.Date(2025, 6, 9, 15, 0, 0, 0, time.UTC)
	ctx := ContextWithNow(context.Background(), now)
	p := NewKeywordParser()

	cases := []struct {
		name string
		text string
		want Intent
	}{
		{
			name: "iso date and clock",
			text: "Full Detailing for Dana Reyes on 2025-06-10 at 10:00",
			want: Intent{ClientName: "Dana Reyes", Service: "Full Detailing", Date: "2025-06-10", Time: "10:00"},
		},
		{
			name: "tomorrow with pm",
			text: "I'd like an interior clean tomorrow at 2pm, my name is Sam",
			want: Intent{ClientName: "Sam", Service: "Interior Detailing", Date: "2025-06-10", Time: "14:00"},
		},
		{
			name: "contact details and notes",
			text: "Book a basic wash today 9:30am. Email sam@example.com phone 555-123-4567. Notes: white SUV",
			want: Intent{Service: "Basic Wash", Date: "2025-06-09", Time: "09:30", ClientEmail: "sam@example.com", ClientPhone: "555-123-4567", Notes: "white SUV"},
		},
		{
			name: "service phrase is not a name",
			text: "Book me for Ceramic Coating on 2025-07-01 at 12pm",
			want: Intent{Service: "Ceramic Coating", Date: "2025-07-01", Time: "12:00"},
		},
		{
			name: "bare hour",
			text: "paint correction 2025-07-01 at 9",
			want: Intent{Service: "Paint Correction", Date: "2025-07-01", Time: "09:00"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.Parse(ctx, tc.text)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestKeywordParserRejectsNoise(t *testing.T) {
	_, err := NewKeywordParser().Parse(context.Background(), "hello there")
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIntentValidate(t *testing.T) {
	ok := Intent{ClientName: "Dana", Service: "Basic Wash", Date: "2025-06-10", Time: "10:00"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid intent: %v", err)
	}

	missing := Intent{Service: "Basic Wash"}
	err := missing.Validate()
	if !errors.Is(err, model.ErrValidation) || !strings.Contains(err.Error(), "client name") {
		t.Fatalf("expected missing fields error, got %v", err)
	}

	bad := ok
	bad.Date = "10/06/2025"
	if err := bad.Validate(); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected bad date error, got %v", err)
	}

	bad = ok
	bad.Time = "24:00"
	if err := bad.Validate(); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected end-of-day time rejected, got %v", err)
	}

	bad = ok
	bad.ClientEmail = "not-an-email"
	if err := bad.Validate(); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected bad email error, got %v", err)
	}
}

func TestIntentWithContact(t *testing.T) {
	in := Intent{ClientEmail: "given@example.com"}.WithContact(model.Contact{Name: "Jordan Lee", Email: "hint@example.com", Phone: "555"})
	if in.ClientName != "Jordan Lee" || in.ClientEmail != "given@example.com" || in.ClientPhone != "555" {
		t.Fatalf("unexpected merge: %+v", in)
	}
}

func TestGeminiParserDecodes(t *testing.T) {
	var prompt string
	p := &GeminiParser{generate: func(_ context.Context, pr string) (string, error) {
		prompt = pr
		return "```json\n{\"clientName\":\"Dana\",\"service\":\"full detailing\",\"date\":\"2025-06-10\",\"time\":\"9:00\",\"extra\":1}\n```", nil
	}}
	ctx := ContextWithNow(context.Background(), time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC))

	got, err := p.Parse(ctx, "full detail tomorrow 9")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := Intent{ClientName: "Dana", Service: "Full Detailing", Date: "2025-06-10", Time: "09:00"}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if !strings.Contains(prompt, "Today is 2025-06-09") || !strings.Contains(prompt, "Paint Correction") {
		t.Fatalf("prompt missing context: %s", prompt)
	}
}

func TestGeminiParserErrors(t *testing.T) {
	malformed := &GeminiParser{generate: func(context.Context, string) (string, error) { return "not json", nil }}
	if _, err := malformed.Parse(context.Background(), "wash"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	upstream := errors.New("quota exceeded")
	failing := &GeminiParser{generate: func(context.Context, string) (string, error) { return "", upstream }}
	_, err := failing.Parse(context.Background(), "wash")
	if !errors.Is(err, upstream) || model.IsPermanent(err) {
		t.Fatalf("expected transient upstream error, got %v", err)
	}
}
