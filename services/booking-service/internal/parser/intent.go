// Package parser turns a free-text booking request into a structured Intent.
package parser

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/catalog"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

type Parser interface {
	Parse(ctx context.Context, text string) (Intent, error)
}

// Intent is a parsed booking request. Date is "YYYY-MM-DD", Time is "HH:MM".
type Intent struct {
	ClientName  string `json:"clientName"`
	ClientEmail string `json:"clientEmail,omitempty"`
	ClientPhone string `json:"clientPhone,omitempty"`
	Service     string `json:"service"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Notes       string `json:"notes,omitempty"`
}

func (i Intent) Contact() model.Contact {
	return model.Contact{Name: i.ClientName, Email: i.ClientEmail, Phone: i.ClientPhone}
}

// WithContact fills blank contact fields from hints, such as the chat user's profile.
func (i Intent) WithContact(hints model.Contact) Intent {
	if i.ClientName == "" {
		i.ClientName = strings.TrimSpace(hints.Name)
	}
	if i.ClientEmail == "" {
		i.ClientEmail = strings.TrimSpace(hints.Email)
	}
	if i.ClientPhone == "" {
		i.ClientPhone = strings.TrimSpace(hints.Phone)
	}
	return i
}

// Normalize trims fields, canonicalizes the service name and zero-pads the time.
func (i Intent) Normalize() Intent {
	i.ClientName = strings.TrimSpace(i.ClientName)
	i.ClientEmail = strings.ToLower(strings.TrimSpace(i.ClientEmail))
	i.ClientPhone = strings.TrimSpace(i.ClientPhone)
	i.Notes = strings.TrimSpace(i.Notes)
	i.Date = strings.TrimSpace(i.Date)
	i.Service = strings.TrimSpace(i.Service)
	if _, ok := catalog.Lookup(i.Service); !ok {
		if name, ok := catalog.Match(i.Service); ok {
			i.Service = name
		}
	}
	if off, err := model.ParseClock(i.Time); err == nil {
		i.Time = fmt.Sprintf("%02d:%02d", int(off/time.Hour), int(off%time.Hour/time.Minute))
	} else {
		i.Time = strings.TrimSpace(i.Time)
	}
	return i
}

// Validate rejects intents that cannot drive a booking.
func (i Intent) Validate() error {
	var missing []string
	if i.ClientName == "" {
		missing = append(missing, "client name")
	}
	if i.Service == "" {
		missing = append(missing, "service")
	}
	if i.Date == "" {
		missing = append(missing, "date")
	}
	if i.Time == "" {
		missing = append(missing, "time")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", model.ErrValidation, strings.Join(missing, ", "))
	}
	if _, err := time.Parse(model.DateLayout, i.Date); err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", model.ErrValidation, i.Date)
	}
	if _, err := model.ParseStartClock(i.Time); err != nil || len(i.Time) != 5 {
		return fmt.Errorf("%w: time %q is not HH:MM", model.ErrValidation, i.Time)
	}
	if i.ClientEmail != "" {
		if _, err := mail.ParseAddress(i.ClientEmail); err != nil {
			return fmt.Errorf("%w: invalid email %q", model.ErrValidation, i.ClientEmail)
		}
	}
	return nil
}

type ctxKey struct{}

// ContextWithNow fixes the reference time used to resolve "today" and "tomorrow".
// Pass it in the tenant's location.
func ContextWithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, ctxKey{}, now)
}

func nowFrom(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ctxKey{}).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}
