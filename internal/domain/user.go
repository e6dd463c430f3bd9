package domain

import (
	"fmt"
	"time"
)

// TimeSlot is one of the four fixed daily delivery windows a user can
// subscribe to. Slots fire at the named hour in UTC; "24:00" fires at
// midnight.
type TimeSlot string

const (
	SlotMorning  TimeSlot = "06:00"
	SlotNoon     TimeSlot = "12:00"
	SlotEvening  TimeSlot = "18:00"
	SlotMidnight TimeSlot = "24:00"
)

// AllTimeSlots returns the four delivery slots in firing order within a day.
func AllTimeSlots() []TimeSlot {
	return []TimeSlot{SlotMidnight, SlotMorning, SlotNoon, SlotEvening}
}

// ParseTimeSlot validates a slot tag.
func ParseTimeSlot(s string) (TimeSlot, error) {
	switch TimeSlot(s) {
	case SlotMorning, SlotNoon, SlotEvening, SlotMidnight:
		return TimeSlot(s), nil
	}
	return "", fmt.Errorf("invalid time slot %q", s)
}

// Hour returns the UTC firing hour for the slot.
func (s TimeSlot) Hour() int {
	switch s {
	case SlotMorning:
		return 6
	case SlotNoon:
		return 12
	case SlotEvening:
		return 18
	case SlotMidnight:
		return 0
	}
	return 0
}

// DeliveryOutcome enumerates the delivery events reported asynchronously by
// the email provider. Each outcome maps to exactly one lifetime counter on
// the User; there is no dynamic field lookup anywhere.
type DeliveryOutcome string

const (
	OutcomeDelivered  DeliveryOutcome = "delivered"
	OutcomeBounced    DeliveryOutcome = "bounced"
	OutcomeComplained DeliveryOutcome = "complained"
)

// ParseDeliveryOutcome validates an outcome tag.
func ParseDeliveryOutcome(s string) (DeliveryOutcome, error) {
	switch DeliveryOutcome(s) {
	case OutcomeDelivered, OutcomeBounced, OutcomeComplained:
		return DeliveryOutcome(s), nil
	}
	return "", fmt.Errorf("invalid delivery outcome %q", s)
}

// User represents a digest subscriber.
type User struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Email         string    `json:"email" db:"email"`
	PreferredSlot *TimeSlot `json:"preferred_slot" db:"preferred_slot"`
	Paused        bool      `json:"paused" db:"paused"`

	// Lifetime delivery counters, mutated only by provider event callbacks.
	DeliveredCount  int `json:"delivered_count" db:"delivered_count"`
	BouncedCount    int `json:"bounced_count" db:"bounced_count"`
	ComplainedCount int `json:"complained_count" db:"complained_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
