package parser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/catalog"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

var (
	isoDateRe  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	ampmRe     = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clockRe    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	atHourRe   = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})\b`)
	emailRe    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe    = regexp.MustCompile(`\+?\(?\d[\d\s\-().]{5,}\d`)
	nameRe     = regexp.MustCompile(`(?:\b[Ff]or|\b[Nn]ame is|\bI'm|\bI am|\b[Tt]his is)\s+([A-Z][a-zA-Z'\-]+(?:\s+[A-Z][a-zA-Z'\-]+)?)`)
	notesRe    = regexp.MustCompile(`(?is)\bnotes?:\s*(.+)$`)
	notAName   = map[string]bool{"today": true, "tomorrow": true, "monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true, "saturday": true, "sunday": true}
	minPhoneNo = 7
)

// KeywordParser extracts an intent with keyword and pattern matching.
type KeywordParser struct{}

func NewKeywordParser() *KeywordParser {
	return &KeywordParser{}
}

func (p *KeywordParser) Parse(ctx context.Context, text string) (Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Intent{}, fmt.Errorf("%w: empty request", model.ErrValidation)
	}

	var in Intent
	body := text
	if m := notesRe.FindStringSubmatch(body); m != nil {
		in.Notes = strings.TrimSpace(m[1])
		body = body[:len(body)-len(m[0])]
	}

	in.Service, _ = catalog.Match(body)
	in.Date = parseDate(body, nowFrom(ctx))
	in.Time = parseTime(body)
	in.ClientEmail = emailRe.FindString(body)

	scrubbed := isoDateRe.ReplaceAllString(emailRe.ReplaceAllString(body, " "), " ")
	scrubbed = clockRe.ReplaceAllString(scrubbed, " ")
	for _, candidate := range phoneRe.FindAllString(scrubbed, -1) {
		if countDigits(candidate) >= minPhoneNo {
			in.ClientPhone = strings.TrimSpace(candidate)
			break
		}
	}

	for _, m := range nameRe.FindAllStringSubmatch(body, -1) {
		name := m[1]
		first := strings.ToLower(strings.Fields(name)[0])
		if notAName[first] {
			continue
		}
		if _, isService := catalog.Match(name); isService {
			continue
		}
		in.ClientName = name
		break
	}

	if in.Service == "" && in.Date == "" && in.Time == "" {
		return Intent{}, fmt.Errorf("%w: could not understand %q", model.ErrValidation, text)
	}
	return in.Normalize(), nil
}

func parseDate(text string, now time.Time) string {
	if m := isoDateRe.FindString(text); m != "" {
		return m
	}
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "tomorrow"):
		return now.AddDate(0, 0, 1).Format(model.DateLayout)
	case strings.Contains(lower, "today"):
		return now.Format(model.DateLayout)
	}
	return ""
}

func parseTime(text string) string {
	if m := ampmRe.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins := 0
		if m[2] != "" {
			mins, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || mins > 59 {
			return ""
		}
		pm := strings.EqualFold(m[3], "pm")
		if h == 12 {
			h = 0
		}
		if pm {
			h += 12
		}
		return fmt.Sprintf("%02d:%02d", h, mins)
	}
	if m := clockRe.FindStringSubmatch(text); m != nil {
		return m[1] + ":" + m[2]
	}
	if m := atHourRe.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h <= 23 {
			return fmt.Sprintf("%02d:00", h)
		}
	}
	return ""
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
