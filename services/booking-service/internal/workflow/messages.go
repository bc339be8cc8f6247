package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/detailbook/detailbook/services/booking-service/internal/availability"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

const whenLayout = "Mon Jan 2, 2006 at 15:04"

func alternativesResult(rc *runContext, res availability.Result) model.RunResult {
	service := res.Service
	var b strings.Builder
	fmt.Fprintf(&b, "Sorry, %s is not available on %s at %s.", service, res.Date, res.Time)
	if len(res.Alternatives) > 0 {
		fmt.Fprintf(&b, " Available times that day: %s.", strings.Join(res.Alternatives, ", "))
	} else {
		b.WriteString(" There are no other openings that day.")
	}
	return model.RunResult{
		Success:      false,
		BookingID:    rc.booking.ID,
		Message:      b.String(),
		Alternatives: res.Alternatives,
	}
}

func (rc *runContext) when(t time.Time) string {
	return t.In(rc.tenant.Location()).Format(whenLayout)
}

func confirmationMessage(rc *runContext) string {
	b := rc.booking
	switch rc.run.Kind {
	case model.RunReschedule:
		return fmt.Sprintf("Your %s has been moved to %s.", b.Service, rc.when(b.DateTime))
	case model.RunCancellation:
		return fmt.Sprintf("Your %s on %s has been cancelled.", b.Service, rc.when(b.DateTime))
	default:
		return fmt.Sprintf("You're booked: %s on %s. Reference %s.", b.Service, rc.when(b.DateTime), b.ID)
	}
}

func clientSubject(rc *runContext) string {
	name := rc.tenant.Name
	if name == "" {
		name = "Your detailer"
	}
	switch rc.run.Kind {
	case model.RunReschedule:
		return name + ": booking moved"
	case model.RunCancellation:
		return name + ": booking cancelled"
	default:
		return name + ": booking confirmed"
	}
}

func tenantMessage(rc *runContext) string {
	b := rc.booking
	who := b.ClientName
	if who == "" {
		who = "walk-in client"
	}
	switch rc.run.Kind {
	case model.RunReschedule:
		return fmt.Sprintf("Booking rescheduled: %s for %s to %s", b.Service, who, rc.when(b.DateTime))
	case model.RunCancellation:
		return fmt.Sprintf("Booking cancelled: %s for %s on %s", b.Service, who, rc.when(b.DateTime))
	default:
		return fmt.Sprintf("New booking: %s for %s on %s", b.Service, who, rc.when(b.DateTime))
	}
}

func threadTitle(rc *runContext) string {
	service := rc.intent.Service
	name := rc.intent.ClientName
	if rc.booking.ID != "" {
		service, name = rc.booking.Service, rc.booking.ClientName
	}
	var verb string
	switch rc.run.Kind {
	case model.RunReschedule:
		verb = "Reschedule"
	case model.RunCancellation:
		verb = "Cancel"
	default:
		verb = "Book"
	}
	switch {
	case service != "" && name != "":
		return fmt.Sprintf("%s %s for %s", verb, service, name)
	case service != "":
		return verb + " " + service
	default:
		return verb + " request"
	}
}

func apologyMessage(kind model.RunKind) string {
	what := "booking"
	switch kind {
	case model.RunReschedule:
		what = "reschedule"
	case model.RunCancellation:
		what = "cancellation"
	}
	return fmt.Sprintf("Sorry, we couldn't complete your %s request. The shop has been notified and will follow up with you.", what)
}

func workflowErrorMessage(rc *runContext, cause error) string {
	return fmt.Sprintf("Assistant %s request failed in %s: %v", rc.run.Kind, rc.run.State, cause)
}

const canceledMessage = "This request was stopped before it finished."
