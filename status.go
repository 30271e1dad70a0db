package dispatchboard

import (
	"encoding/json"
	"fmt"
	"time"
)

// JourneyStatus is the lifecycle state of a [Journey].
//
// JourneyStatus is a string type holding one of [StatusScheduled],
// [StatusInProgress] or [StatusFinished]. The string values match the wire
// format of the dispatch API, so statuses serialize to JSON unchanged.
type JourneyStatus string

const (
	// StatusScheduled indicates the journey has not started yet.
	StatusScheduled JourneyStatus = "Scheduled"

	// StatusInProgress indicates the journey is underway.
	StatusInProgress JourneyStatus = "InProgress"

	// StatusFinished indicates the journey is complete.
	StatusFinished JourneyStatus = "Finished"
)

// JourneyStatuses lists every status in lifecycle order.
var JourneyStatuses = []JourneyStatus{StatusScheduled, StatusInProgress, StatusFinished}

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s JourneyStatus) String() string {
	return string(s)
}

// Next returns the status that follows s in the linear lifecycle
// Scheduled → InProgress → Finished. ok is false for [StatusFinished].
//
// Next is informational: the store applies whatever status a caller asks for,
// including regressions such as Finished → Scheduled.
func (s JourneyStatus) Next() (next JourneyStatus, ok bool) {
	switch s {
	case StatusScheduled:
		return StatusInProgress, true
	case StatusInProgress:
		return StatusFinished, true
	default:
		return "", false
	}
}

// ParseJourneyStatus converts a wire value into a [JourneyStatus].
func ParseJourneyStatus(v string) (JourneyStatus, error) {
	switch s := JourneyStatus(v); s {
	case StatusScheduled, StatusInProgress, StatusFinished:
		return s, nil
	default:
		return "", fmt.Errorf("unknown journey status %q", v)
	}
}

// UnmarshalText rejects statuses outside the lifecycle, so every loaded
// journey lands in exactly one status partition.
func (s *JourneyStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseJourneyStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Journey is a scheduled trip.
//
// AssignedVehicleID is a weak reference into the vehicle collection: it may
// point at a vehicle that no longer exists, in which case lookups treat the
// journey as unassigned.
type Journey struct {
	ID                int           `json:"id"`
	Title             string        `json:"title"`
	StartTime         time.Time     `json:"startTime"`
	EndTime           time.Time     `json:"endTime"`
	Status            JourneyStatus `json:"status"`
	AssignedVehicleID *int          `json:"assignedVehicleId"`
}

// Vehicle is a vehicle that can be assigned to journeys.
type Vehicle struct {
	ID       int    `json:"id"`
	Number   string `json:"number"`
	Capacity int    `json:"capacity"`
}

// Task is a checklist item attached to a journey.
type Task struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	JourneyID int    `json:"journeyId"`
	Completed bool   `json:"completed"`
}

// Product is a cart line. Quantity is never negative.
type Product struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// UnmarshalJSON rejects negative quantities, so a remote list carrying one
// fails to load instead of reaching the cart.
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if decoded.Quantity < 0 {
		return fmt.Errorf("product %d: %w", decoded.ID, ErrNegativeQuantity)
	}
	*p = Product(decoded)
	return nil
}

// LoadOptions are the per-call testing hooks passed through to the remote
// source.
type LoadOptions struct {
	// Delay is artificial latency before the call resolves.
	Delay time.Duration

	// SimulateError forces the call to fail.
	SimulateError bool
}

// VehicleRef returns a pointer to id, for use as [Journey.AssignedVehicleID].
func VehicleRef(id int) *int {
	return &id
}
