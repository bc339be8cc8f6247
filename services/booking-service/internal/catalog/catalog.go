// Package catalog is the fixed list of detailing services offered by every tenant.
package catalog

import (
	"strings"
	"time"
)

// DefaultDuration applies to service names missing from the catalog.
const DefaultDuration = 60 * time.Minute

type Service struct {
	Name       string        `json:"name"`
	Duration   time.Duration `json:"-"`
	Minutes    int           `json:"duration_minutes"`
	PriceCents int64         `json:"price_cents"`
}

var services = []Service{
	{Name: "Basic Wash", Duration: 30 * time.Minute, PriceCents: 2500},
	{Name: "Interior Detailing", Duration: 60 * time.Minute, PriceCents: 8000},
	{Name: "Exterior Detailing", Duration: 60 * time.Minute, PriceCents: 8000},
	{Name: "Full Detailing", Duration: 120 * time.Minute, PriceCents: 15000},
	{Name: "Ceramic Coating", Duration: 120 * time.Minute, PriceCents: 50000},
	{Name: "Paint Correction", Duration: 180 * time.Minute, PriceCents: 40000},
}

var byName = func() map[string]Service {
	m := make(map[string]Service, len(services))
	for i := range services {
		services[i].Minutes = int(services[i].Duration / time.Minute)
		m[services[i].Name] = services[i]
	}
	return m
}()

// Keyword order matters: longer, more specific phrases are tried first.
var keywords = []struct {
	word    string
	service string
}{
	{"paint correction", "Paint Correction"},
	{"ceramic", "Ceramic Coating"},
	{"full", "Full Detailing"},
	{"interior", "Interior Detailing"},
	{"exterior", "Exterior Detailing"},
	{"paint", "Paint Correction"},
	{"basic", "Basic Wash"},
	{"wash", "Basic Wash"},
}

func All() []Service {
	out := make([]Service, len(services))
	copy(out, services)
	return out
}

// Lookup matches the exact service name.
func Lookup(name string) (Service, bool) {
	s, ok := byName[name]
	return s, ok
}

// Duration returns the catalog duration, or DefaultDuration for unknown names.
func Duration(name string) time.Duration {
	if s, ok := byName[name]; ok {
		return s.Duration
	}
	return DefaultDuration
}

// MaxDuration is the longest service in the catalog.
func MaxDuration() time.Duration {
	longest := DefaultDuration
	for _, s := range services {
		if s.Duration > longest {
			longest = s.Duration
		}
	}
	return longest
}

// Match finds a service mentioned in free text, first by full name then by keyword.
func Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, s := range services {
		if strings.Contains(lower, strings.ToLower(s.Name)) {
			return s.Name, true
		}
	}
	for _, k := range keywords {
		if strings.Contains(lower, k.word) {
			return k.service, true
		}
	}
	return "", false
}
