package dispatchboard

import (
	"context"
	"slices"

	"github.com/jpalmerr/dispatchboard/reactive"
	"github.com/jpalmerr/dispatchboard/remote"
)

// Snapshot is a consistent view of a [BoardStore] taken within one settle
// cycle.
type Snapshot struct {
	Journeys          []Journey      `json:"journeys"`
	Scheduled         []Journey      `json:"scheduled"`
	InProgress        []Journey      `json:"inProgress"`
	Finished          []Journey      `json:"finished"`
	Vehicles          []Vehicle      `json:"vehicles"`
	AvailableVehicles []Vehicle      `json:"availableVehicles"`
	TasksByJourney    map[int][]Task `json:"tasksByJourney"`
	IsLoading         bool           `json:"isLoading"`
	Error             string         `json:"error,omitempty"`
}

// BoardStore holds the dispatch board state: journeys, vehicles and tasks,
// the views derived from them and the loading and error flags.
//
// Each collection cell has exactly one writer, the store. Callers read
// through the [reactive.View] accessors and change state only through the
// load and mutation methods, all of which are safe for concurrent use.
//
// Remote calls never block the caller: loads and mutations return once the
// local state has been updated, and completions are applied later as their
// own settle cycles. Use [BoardStore.Wait] to block until they have landed.
//
// Example:
//
//	store, err := dispatchboard.NewBoardStore(dispatchboard.WithSource(src))
//	if err != nil {
//	    return err
//	}
//	store.Watch("log-scheduled", func(s *reactive.Scope) error {
//	    slog.Info("scheduled journeys", "count", len(store.ScheduledJourneys().Read(s)))
//	    return nil
//	})
//	store.LoadJourneys(ctx, dispatchboard.LoadOptions{})
type BoardStore struct {
	life *lifecycle

	journeys *reactive.Cell[[]Journey]
	vehicles *reactive.Cell[[]Vehicle]
	tasks    *reactive.Cell[[]Task]

	scheduled      *reactive.Derived[[]Journey]
	inProgress     *reactive.Derived[[]Journey]
	finished       *reactive.Derived[[]Journey]
	available      *reactive.Derived[[]Vehicle]
	tasksByJourney *reactive.Derived[map[int][]Task]
	snapshot       *reactive.Derived[Snapshot]
}

// NewBoardStore creates a [BoardStore] with empty collections.
//
// A source must be configured via [WithSource]; see [Option] for the rest.
// Returns [ErrNoSource] if no source is configured or the first error
// reported by an option.
func NewBoardStore(opts ...Option) (*BoardStore, error) {
	cfg, err := newStoreConfig(opts)
	if err != nil {
		return nil, err
	}

	rt := cfg.runtime
	b := &BoardStore{
		life:     newLifecycle(cfg),
		journeys: reactive.NewCell(rt, []Journey{}),
		vehicles: reactive.NewCell(rt, []Vehicle{}),
		tasks:    reactive.NewCell(rt, []Task{}),
	}

	b.scheduled = reactive.NewDerived(rt, b.byStatus(StatusScheduled))
	b.inProgress = reactive.NewDerived(rt, b.byStatus(StatusInProgress))
	b.finished = reactive.NewDerived(rt, b.byStatus(StatusFinished))
	b.available = reactive.NewDerived(rt, func(s *reactive.Scope) []Vehicle {
		return availableVehicles(b.vehicles.Read(s), b.journeys.Read(s))
	})
	b.tasksByJourney = reactive.NewDerived(rt, func(s *reactive.Scope) map[int][]Task {
		return groupTasks(b.tasks.Read(s))
	})
	b.snapshot = reactive.NewDerived(rt, func(s *reactive.Scope) Snapshot {
		return Snapshot{
			Journeys:          b.journeys.Read(s),
			Scheduled:         b.scheduled.Read(s),
			InProgress:        b.inProgress.Read(s),
			Finished:          b.finished.Read(s),
			Vehicles:          b.vehicles.Read(s),
			AvailableVehicles: b.available.Read(s),
			TasksByJourney:    b.tasksByJourney.Read(s),
			IsLoading:         b.life.isLoading.Read(s),
			Error:             b.life.err.Read(s),
		}
	})
	return b, nil
}

func (b *BoardStore) byStatus(status JourneyStatus) func(s *reactive.Scope) []Journey {
	return func(s *reactive.Scope) []Journey {
		return filterJourneys(b.journeys.Read(s), status)
	}
}

// Runtime returns the runtime the store's cells live on.
func (b *BoardStore) Runtime() *reactive.Runtime { return b.life.rt }

// Journeys returns the raw journey collection.
func (b *BoardStore) Journeys() reactive.View[[]Journey] { return b.journeys }

// Vehicles returns the raw vehicle collection.
func (b *BoardStore) Vehicles() reactive.View[[]Vehicle] { return b.vehicles }

// Tasks returns the raw task collection.
func (b *BoardStore) Tasks() reactive.View[[]Task] { return b.tasks }

// IsLoading reports whether any load is in flight.
func (b *BoardStore) IsLoading() reactive.View[bool] { return b.life.isLoading }

// Error holds the message of the last failed remote call, or "" when the
// last load attempt started after it.
func (b *BoardStore) Error() reactive.View[string] { return b.life.err }

// ScheduledJourneys returns the journeys whose status is [StatusScheduled].
func (b *BoardStore) ScheduledJourneys() reactive.View[[]Journey] { return b.scheduled }

// InProgressJourneys returns the journeys whose status is [StatusInProgress].
func (b *BoardStore) InProgressJourneys() reactive.View[[]Journey] { return b.inProgress }

// FinishedJourneys returns the journeys whose status is [StatusFinished].
func (b *BoardStore) FinishedJourneys() reactive.View[[]Journey] { return b.finished }

// AvailableVehicles returns the vehicles no journey is assigned to.
func (b *BoardStore) AvailableVehicles() reactive.View[[]Vehicle] { return b.available }

// TasksByJourney groups tasks by the journey they belong to.
func (b *BoardStore) TasksByJourney() reactive.View[map[int][]Task] { return b.tasksByJourney }

// Snapshot combines every collection and derived view.
func (b *BoardStore) Snapshot() reactive.View[Snapshot] { return b.snapshot }

// Watch attaches a watcher to the store's runtime. See [reactive.Runtime.Watch].
func (b *BoardStore) Watch(name string, action func(s *reactive.Scope) error) *reactive.Watcher {
	return b.life.rt.Watch(name, action)
}

// Wait blocks until every load and persist started so far has completed and
// its result has been applied.
func (b *BoardStore) Wait() {
	b.life.wait()
}

// LoadJourneys replaces the journey collection with the remote one.
//
// LoadJourneys returns immediately with [BoardStore.IsLoading] raised and
// [BoardStore.Error] cleared. ctx bounds the remote call, which outlives the
// method call. Concurrent loads are not coalesced: the last to complete wins.
func (b *BoardStore) LoadJourneys(ctx context.Context, opts LoadOptions) {
	load(b.life, ctx, remote.Journeys, opts, b.journeys)
}

// LoadVehicles replaces the vehicle collection. See [BoardStore.LoadJourneys].
func (b *BoardStore) LoadVehicles(ctx context.Context, opts LoadOptions) {
	load(b.life, ctx, remote.Vehicles, opts, b.vehicles)
}

// LoadTasks replaces the task collection. See [BoardStore.LoadJourneys].
func (b *BoardStore) LoadTasks(ctx context.Context, opts LoadOptions) {
	load(b.life, ctx, remote.Tasks, opts, b.tasks)
}

// LoadAll starts every collection load in a single settle cycle.
func (b *BoardStore) LoadAll(ctx context.Context, opts LoadOptions) {
	b.life.rt.Batch(func() {
		b.LoadJourneys(ctx, opts)
		b.LoadVehicles(ctx, opts)
		b.LoadTasks(ctx, opts)
	})
}

// AssignVehicle assigns a vehicle to a journey.
//
// The local journey is replaced before AssignVehicle returns, then the change
// is persisted. A failed persist sets [BoardStore.Error] and keeps the local
// change. The vehicle is not checked against the vehicle collection.
func (b *BoardStore) AssignVehicle(ctx context.Context, journeyID, vehicleID int) {
	b.patchJourney(ctx, journeyID, map[string]any{"assignedVehicleId": vehicleID}, func(j Journey) Journey {
		j.AssignedVehicleID = VehicleRef(vehicleID)
		return j
	}, "Failed to assign vehicle")
}

// UnassignVehicle clears the vehicle of a journey. See [BoardStore.AssignVehicle].
func (b *BoardStore) UnassignVehicle(ctx context.Context, journeyID int) {
	b.patchJourney(ctx, journeyID, map[string]any{"assignedVehicleId": nil}, func(j Journey) Journey {
		j.AssignedVehicleID = nil
		return j
	}, "Failed to unassign vehicle")
}

// UpdateJourneyStatus sets the status of a journey. See [BoardStore.AssignVehicle].
//
// Any known status is accepted from any other, including regressions: the
// lifecycle order is the caller's responsibility. Returns an error only for a
// status outside [JourneyStatuses].
func (b *BoardStore) UpdateJourneyStatus(ctx context.Context, journeyID int, status JourneyStatus) error {
	if _, err := ParseJourneyStatus(string(status)); err != nil {
		return err
	}
	b.patchJourney(ctx, journeyID, map[string]any{"status": status}, func(j Journey) Journey {
		j.Status = status
		return j
	}, "Failed to update journey status")
	return nil
}

// StartJourney moves a journey to [StatusInProgress].
func (b *BoardStore) StartJourney(ctx context.Context, journeyID int) {
	_ = b.UpdateJourneyStatus(ctx, journeyID, StatusInProgress)
}

// FinishJourney moves a journey to [StatusFinished].
func (b *BoardStore) FinishJourney(ctx context.Context, journeyID int) {
	_ = b.UpdateJourneyStatus(ctx, journeyID, StatusFinished)
}

// patchJourney applies the optimistic local write, then persists fields.
// A journey missing locally is still persisted so the remote verdict
// surfaces in the error cell.
func (b *BoardStore) patchJourney(ctx context.Context, id int, fields map[string]any, apply func(Journey) Journey, fallback string) {
	found := b.journeys.UpdateIf(func(cur []Journey) ([]Journey, bool) {
		idx := slices.IndexFunc(cur, func(j Journey) bool { return j.ID == id })
		if idx < 0 {
			return cur, false
		}
		next := slices.Clone(cur)
		next[idx] = apply(next[idx])
		return next, true
	})
	if !found {
		b.life.logger.Debug("journey not in local state", "journey_id", id)
	}
	b.life.persistPatch(ctx, remote.Journeys, id, fields, fallback)
}

// Journey looks up a journey by id.
func (b *BoardStore) Journey(id int) (Journey, bool) {
	return find(b.journeys.Get(), func(j Journey) bool { return j.ID == id })
}

// Vehicle looks up a vehicle by id.
func (b *BoardStore) Vehicle(id int) (Vehicle, bool) {
	return find(b.vehicles.Get(), func(v Vehicle) bool { return v.ID == id })
}

// AssignedVehicle returns the vehicle assigned to a journey. ok is false when
// the journey is unknown, unassigned, or references a vehicle that no longer
// exists.
func (b *BoardStore) AssignedVehicle(journeyID int) (v Vehicle, ok bool) {
	// read both collections from one snapshot so they agree
	snap := b.snapshot.Get()
	j, ok := find(snap.Journeys, func(j Journey) bool { return j.ID == journeyID })
	if !ok || j.AssignedVehicleID == nil {
		return Vehicle{}, false
	}
	return find(snap.Vehicles, func(v Vehicle) bool { return v.ID == *j.AssignedVehicleID })
}

func find[T any](items []T, match func(T) bool) (T, bool) {
	if idx := slices.IndexFunc(items, match); idx >= 0 {
		return items[idx], true
	}
	var zero T
	return zero, false
}

func filterJourneys(journeys []Journey, status JourneyStatus) []Journey {
	out := make([]Journey, 0, len(journeys))
	for _, j := range journeys {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out
}

// availableVehicles returns the vehicles not referenced by any journey.
// References to unknown vehicles are ignored.
func availableVehicles(vehicles []Vehicle, journeys []Journey) []Vehicle {
	assigned := make(map[int]struct{}, len(journeys))
	for _, j := range journeys {
		if j.AssignedVehicleID != nil {
			assigned[*j.AssignedVehicleID] = struct{}{}
		}
	}

	out := make([]Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if _, taken := assigned[v.ID]; !taken {
			out = append(out, v)
		}
	}
	return out
}

func groupTasks(tasks []Task) map[int][]Task {
	out := make(map[int][]Task)
	for _, t := range tasks {
		out[t.JourneyID] = append(out[t.JourneyID], t)
	}
	return out
}
