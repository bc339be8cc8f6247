package tenants

import (
	"context"
	"errors"
	"testing"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/storage/memory"
)

func TestSignup(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	tenant, err := svc.Signup(ctx, SignupInput{ID: "shine", Name: "Shine Auto", Timezone: "America/Denver"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if tenant.Hours.Default.Open != "09:00" || tenant.Hours.Default.Close != "17:00" {
		t.Fatalf("expected default hours, got %+v", tenant.Hours)
	}
	if _, err := svc.Signup(ctx, SignupInput{ID: "shine", Name: "Again"}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	cases := []SignupInput{
		{Name: ""},
		{Name: "X", Timezone: "Mars/Olympus"},
		{Name: "X", Hours: &model.BusinessHours{Default: model.DayHours{Open: "18:00", Close: "08:00"}}},
	}
	for _, in := range cases {
		if _, err := svc.Signup(ctx, in); !errors.Is(err, model.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}
}
