package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Collection names served by the dispatch board API.
const (
	Journeys = "journeys"
	Vehicles = "vehicles"
	Tasks    = "tasks"
	Products = "products"
)

// ErrNotFound matches failures caused by an unknown collection or entity.
var ErrNotFound = errors.New("not found")

// CallOptions are pass-through testing hooks honored per call.
type CallOptions struct {
	// Delay is artificial latency before the call resolves.
	Delay time.Duration

	// SimulateError forces a failure response regardless of other state.
	SimulateError bool
}

// query encodes the options the way the mock API expects them.
func (o CallOptions) query() url.Values {
	q := url.Values{}
	if o.Delay > 0 {
		q.Set("delay", strconv.FormatInt(o.Delay.Milliseconds(), 10))
	}
	if o.SimulateError {
		q.Set("error", "true")
	}
	return q
}

// Failure is a remote-call failure.
//
// Message is human-readable and meant to be surfaced verbatim.
type Failure struct {
	// StatusCode is the HTTP status of the failed call, or 0 when the call
	// never produced a response.
	StatusCode int

	// Message describes the failure.
	Message string

	err error
}

// Error returns the failure message.
func (f *Failure) Error() string {
	return f.Message
}

// Unwrap returns the underlying cause, if any.
func (f *Failure) Unwrap() error {
	return f.err
}

// notFound builds a [Failure] matching [ErrNotFound].
func notFound(format string, args ...any) *Failure {
	return &Failure{StatusCode: http.StatusNotFound, Message: fmt.Sprintf(format, args...), err: ErrNotFound}
}

// Source is the remote data source contract.
//
// Implementations must be safe for concurrent use. Every method decodes its
// result into out, which must be a pointer (or nil to discard the result).
type Source interface {
	// List returns every entity of a collection.
	List(ctx context.Context, collection string, opts CallOptions, out any) error

	// Get returns a single entity. A missing entity yields an error matching
	// [ErrNotFound].
	Get(ctx context.Context, collection string, id int, opts CallOptions, out any) error

	// Patch shallow-merges fields over an entity and returns the merged entity.
	Patch(ctx context.Context, collection string, id int, fields map[string]any, opts CallOptions, out any) error
}

// NotFoundMessage returns the message reported when an entity of collection
// does not exist, such as "Journey not found".
func NotFoundMessage(collection string) string {
	name := "Entity"
	switch collection {
	case Journeys:
		name = "Journey"
	case Vehicles:
		name = "Vehicle"
	case Tasks:
		name = "Task"
	case Products:
		name = "Product"
	}
	return name + " not found"
}
