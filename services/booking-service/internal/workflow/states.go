package workflow

import (
	"fmt"

	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

// transitions lists the forward edges of the run state machine. Every
// non-terminal state may also move to failed or canceled, and a resumed run
// may re-enter the state it stopped in.
var transitions = map[model.RunState][]model.RunState{
	model.StatePending:                {model.StateParsing, model.StateLoadingBooking},
	model.StateParsing:                {model.StateResolvingClient},
	model.StateResolvingClient:        {model.StateCheckingAvailability},
	model.StateLoadingBooking:         {model.StateCheckingAvailability, model.StateCancellingBooking},
	model.StateCheckingAvailability:   {model.StateSuggestingAlternatives, model.StateCreatingBooking, model.StateUpdatingBooking},
	model.StateSuggestingAlternatives: {model.StateCompleted},
	model.StateCreatingBooking:        {model.StateNotifying, model.StateCompleted},
	model.StateUpdatingBooking:        {model.StateNotifying, model.StateCompleted},
	model.StateCancellingBooking:      {model.StateNotifying},
	model.StateNotifying:              {model.StateGeneratingConfirmation},
	model.StateGeneratingConfirmation: {model.StateCompleted},
}

func canTransition(from, to model.RunState) bool {
	if from.Terminal() {
		return false
	}
	if from == to || to == model.StateFailed || to == model.StateCanceled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to model.RunState) error {
	if !canTransition(from, to) {
		return fmt.Errorf("%w: run cannot move from %s to %s", model.ErrInvalidState, from, to)
	}
	return nil
}
