package dispatchboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/dispatchboard/reactive"
	"github.com/jpalmerr/dispatchboard/remote"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMemorySource(t *testing.T, data remote.Dataset) *remote.MemorySource {
	t.Helper()
	src, err := remote.NewMemorySource(data)
	if err != nil {
		t.Fatalf("NewMemorySource() error = %v", err)
	}
	return src
}

func newTestBoard(t *testing.T, src remote.Source, opts ...Option) *BoardStore {
	t.Helper()
	store, err := NewBoardStore(append([]Option{WithSource(src), WithLogger(testLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("NewBoardStore() error = %v", err)
	}
	t.Cleanup(store.Wait)
	return store
}

// funcSource is a remote.Source whose List calls are answered by a function.
type funcSource struct {
	list  func(ctx context.Context, collection string, opts remote.CallOptions) (any, error)
	calls atomic.Int32
}

func (f *funcSource) List(ctx context.Context, collection string, opts remote.CallOptions, out any) error {
	f.calls.Add(1)
	v, err := f.list(ctx, collection, opts)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *funcSource) Get(context.Context, string, int, remote.CallOptions, any) error {
	return errors.New("not implemented")
}

func (f *funcSource) Patch(context.Context, string, int, map[string]any, remote.CallOptions, any) error {
	return nil
}

// boardDataset returns vehicles [1,2,3] and journeys assigned to [1, none, 2].
func boardDataset() remote.Dataset {
	return remote.Dataset{
		remote.Vehicles: {
			{"id": 1, "number": "VEH-001", "capacity": 50},
			{"id": 2, "number": "VEH-002", "capacity": 40},
			{"id": 3, "number": "VEH-003", "capacity": 60},
		},
		remote.Journeys: {
			{"id": 1, "title": "A", "startTime": "2025-11-05T08:00:00Z", "endTime": "2025-11-05T12:00:00Z", "status": "InProgress", "assignedVehicleId": 1},
			{"id": 2, "title": "B", "startTime": "2025-11-05T09:00:00Z", "endTime": "2025-11-05T14:00:00Z", "status": "Scheduled", "assignedVehicleId": nil},
			{"id": 3, "title": "C", "startTime": "2025-11-05T10:00:00Z", "endTime": "2025-11-05T16:00:00Z", "status": "Scheduled", "assignedVehicleId": 2},
		},
		remote.Tasks: {},
	}
}

func loadBoard(t *testing.T, store *BoardStore) {
	t.Helper()
	store.LoadAll(context.Background(), LoadOptions{})
	store.Wait()
	if msg := store.Error().Get(); msg != "" {
		t.Fatalf("LoadAll() error = %q", msg)
	}
}

func ids[T any](items []T, id func(T) int) []int {
	out := make([]int, len(items))
	for i, item := range items {
		out[i] = id(item)
	}
	return out
}

func journeyID(j Journey) int { return j.ID }
func vehicleID(v Vehicle) int { return v.ID }

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewBoardStore_NoSource(t *testing.T) {
	_, err := NewBoardStore()
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("NewBoardStore() error = %v, want ErrNoSource", err)
	}
}

func TestNewBoardStore_InvalidOptions(t *testing.T) {
	src := newMemorySource(t, boardDataset())

	tests := []struct {
		name string
		opt  Option
	}{
		{"nil source", WithSource(nil)},
		{"nil logger", WithLogger(nil)},
		{"nil runtime", WithRuntime(nil)},
		{"negative persist delay", WithPersistOptions(LoadOptions{Delay: -time.Second})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBoardStore(WithSource(src), tt.opt); err == nil {
				t.Error("NewBoardStore() error = nil, want error")
			}
		})
	}
}

func TestBoardStore_StartsEmpty(t *testing.T) {
	store := newTestBoard(t, newMemorySource(t, boardDataset()))

	if got := len(store.Journeys().Get()); got != 0 {
		t.Errorf("len(Journeys) = %v, want 0", got)
	}
	if got := len(store.AvailableVehicles().Get()); got != 0 {
		t.Errorf("len(AvailableVehicles) = %v, want 0", got)
	}
	if store.IsLoading().Get() {
		t.Error("IsLoading = true, want false")
	}
	if msg := store.Error().Get(); msg != "" {
		t.Errorf("Error = %q, want empty", msg)
	}
}

func TestBoardStore_LoadingLifecycle(t *testing.T) {
	release := make(chan struct{})
	src := &funcSource{list: func(ctx context.Context, _ string, _ remote.CallOptions) (any, error) {
		<-release
		return remote.SeedDataset()[remote.Journeys], nil
	}}
	store := newTestBoard(t, src)

	store.LoadJourneys(context.Background(), LoadOptions{})

	// in flight: the flag is raised before the source answers
	if !store.IsLoading().Get() {
		t.Error("IsLoading during load = false, want true")
	}
	if got := len(store.Journeys().Get()); got != 0 {
		t.Errorf("len(Journeys) during load = %v, want 0", got)
	}

	close(release)
	store.Wait()

	if store.IsLoading().Get() {
		t.Error("IsLoading after load = true, want false")
	}
	if msg := store.Error().Get(); msg != "" {
		t.Errorf("Error after load = %q, want empty", msg)
	}
	if got := len(store.Journeys().Get()); got != 8 {
		t.Errorf("len(Journeys) after load = %v, want 8", got)
	}
}

func TestBoardStore_LoadFailureLeavesCollection(t *testing.T) {
	store := newTestBoard(t, newMemorySource(t, remote.SeedDataset()))
	loadBoard(t, store)
	before := store.Journeys().Get()

	store.LoadJourneys(context.Background(), LoadOptions{SimulateError: true})
	store.Wait()

	if msg := store.Error().Get(); msg != remote.SimulatedErrorMessage {
		t.Errorf("Error = %q, want %q", msg, remote.SimulatedErrorMessage)
	}
	if store.IsLoading().Get() {
		t.Error("IsLoading = true, want false")
	}
	after := store.Journeys().Get()
	if len(after) != len(before) || &after[0] != &before[0] {
		t.Error("failed load replaced the journey collection")
	}
}

func TestBoardStore_LoadClearsPreviousError(t *testing.T) {
	release := make(chan struct{})
	var fail atomic.Bool
	fail.Store(true)
	src := &funcSource{list: func(context.Context, string, remote.CallOptions) (any, error) {
		if fail.Load() {
			return nil, &remote.Failure{Message: "boom"}
		}
		<-release
		return []any{}, nil
	}}
	store := newTestBoard(t, src)

	store.LoadVehicles(context.Background(), LoadOptions{})
	store.Wait()
	if msg := store.Error().Get(); msg != "boom" {
		t.Fatalf("Error = %q, want boom", msg)
	}

	fail.Store(false)
	store.LoadVehicles(context.Background(), LoadOptions{})
	if msg := store.Error().Get(); msg != "" {
		t.Errorf("Error at start of next load = %q, want empty", msg)
	}
	close(release)
}

func TestBoardStore_OverlappingLoadsKeepLoading(t *testing.T) {
	releaseJourneys := make(chan struct{})
	src := &funcSource{list: func(_ context.Context, collection string, _ remote.CallOptions) (any, error) {
		if collection == remote.Journeys {
			<-releaseJourneys
		}
		return []any{}, nil
	}}
	store := newTestBoard(t, src)
	ctx := context.Background()

	store.LoadJourneys(ctx, LoadOptions{})
	store.LoadVehicles(ctx, LoadOptions{})

	// wait for the vehicles load to land
	deadline := time.Now().Add(2 * time.Second)
	for store.Vehicles().Version() == 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !store.IsLoading().Get() {
		t.Error("IsLoading = false while the journeys load is in flight, want true")
	}

	close(releaseJourneys)
	store.Wait()
	if store.IsLoading().Get() {
		t.Error("IsLoading = true after both loads, want false")
	}
}

func TestBoardStore_ConcurrentLoadsLastCompletionWins(t *testing.T) {
	var call atomic.Int32
	src := &funcSource{list: func(context.Context, string, remote.CallOptions) (any, error) {
		// the first call is slow and returns the older data
		if call.Add(1) == 1 {
			time.Sleep(80 * time.Millisecond)
			return []map[string]any{{"id": 1, "number": "SLOW", "capacity": 1}}, nil
		}
		return []map[string]any{{"id": 1, "number": "FAST", "capacity": 1}}, nil
	}}
	store := newTestBoard(t, src)
	ctx := context.Background()

	store.LoadVehicles(ctx, LoadOptions{})
	time.Sleep(10 * time.Millisecond)
	store.LoadVehicles(ctx, LoadOptions{})
	store.Wait()

	v, ok := store.Vehicle(1)
	if !ok {
		t.Fatal("Vehicle(1) not found")
	}
	if v.Number != "SLOW" {
		t.Errorf("Vehicle(1).Number = %q, want SLOW (last completion)", v.Number)
	}
}

func TestBoardStore_PartitionCompleteness(t *testing.T) {
	store := newTestBoard(t, newMemorySource(t, remote.SeedDataset()))
	loadBoard(t, store)

	journeys := store.Journeys().Get()
	partitions := map[JourneyStatus][]Journey{
		StatusScheduled:  store.ScheduledJourneys().Get(),
		StatusInProgress: store.InProgressJourneys().Get(),
		StatusFinished:   store.FinishedJourneys().Get(),
	}

	total := 0
	seen := make(map[int]int)
	for status, part := range partitions {
		total += len(part)
		for _, j := range part {
			if j.Status != status {
				t.Errorf("journey %d with status %s in %s partition", j.ID, j.Status, status)
			}
			seen[j.ID]++
		}
	}
	if total != len(journeys) {
		t.Errorf("partition sizes sum = %v, want %v", total, len(journeys))
	}
	for _, j := range journeys {
		if seen[j.ID] != 1 {
			t.Errorf("journey %d appears in %d partitions, want 1", j.ID, seen[j.ID])
		}
	}

	if got := ids(partitions[StatusScheduled], journeyID); !equalInts(got, []int{1, 3, 4, 6, 7}) {
		t.Errorf("ScheduledJourneys = %v, want [1 3 4 6 7]", got)
	}
}

func TestBoardStore_AvailableVehicles(t *testing.T) {
	store := newTestBoard(t, newMemorySource(t, boardDataset()))
	loadBoard(t, store)

	if got := ids(store.AvailableVehicles().Get(), vehicleID); !equalInts(got, []int{3}) {
		t.Errorf("AvailableVehicles = %v, want [3]", got)
	}

	// unassigning frees the vehicle
	store.UnassignVehicle(context.Background(), 1)
	if got := ids(store.AvailableVehicles().Get(), vehicleID); !equalInts(got, []int{1, 3}) {
		t.Errorf("AvailableVehicles after unassign = %v, want [1 3]", got)
	}
}

func TestBoardStore_DerivedReadsAreIdempotent(t *testing.T) {
	store := newTestBoard(t, newMemorySource(t, remote.SeedDataset()))
	loadBoard(t, store)

	first := store.ScheduledJourneys().Get()
	recomputes := store.Runtime().Stats().Recomputes
	second := store.ScheduledJourneys().Get()

	if len(first) == 0 || &first[0] != &second[0] {
		t.Error("second read returned a different slice, want the cached one")
	}
	if got := store.Runtime().Stats().Recomputes; got != recomputes {
		t.Errorf("Recomputes = %v after a cached read, want %v", got, recomputes)
	}
}

func TestBoardStore_OptimisticAssignWithoutRollback(t *testing.T) {
	src := newMemorySource(t, boardDataset())
	store := newTestBoard(t, src, WithPersistOptions(LoadOptions{SimulateError: true}))
	loadBoard(t, store)

	store.AssignVehicle(context.Background(), 2, 1)

	// visible before the persist resolves
	j, _ := store.Journey(2)
	if j.AssignedVehicleID == nil || *j.AssignedVehicleID != 1 {
		t.Fatalf("AssignedVehicleID before persist = %v, want 1", j.AssignedVehicleID)
	}

	store.Wait()

	j, _ = store.Journey(2)
	if j.AssignedVehicleID == nil || *j.AssignedVehicleID != 1 {
		t.Errorf("AssignedVehicleID after failed persist = %v, want 1", j.AssignedVehicleID)
	}
	if msg := store.Error().Get(); msg == "" {
		t.Error("Error after failed persist is empty, want a message")
	}

	// the remote copy is unchanged
	var remoteJourney Journey
	if err := src.Get(context.Background(), remote.Journeys, 2, remote.CallOptions{}, &remoteJourney); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if remoteJourney.AssignedVehicleID != nil {
		t.Errorf("remote AssignedVehicleID = %v, want nil", *remoteJourney.AssignedVehicleID)
	}
}

func TestBoardStore_AssignPersists(t *testing.T) {
	src := newMemorySource(t, boardDataset())
	store := newTestBoard(t, src)
	loadBoard(t, store)

	store.AssignVehicle(context.Background(), 2, 3)
	store.Wait()

	if msg := store.Error().Get(); msg != "" {
		t.Fatalf("Error = %q, want empty", msg)
	}
	var remoteJourney Journey
	if err := src.Get(context.Background(), remote.Journeys, 2, remote.CallOptions{}, &remoteJourney); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if remoteJourney.AssignedVehicleID == nil || *remoteJourney.AssignedVehicleID != 3 {
		t.Errorf("remote AssignedVehicleID = %v, want 3", remoteJourney.AssignedVehicleID)
	}
	if got := len(store.AvailableVehicles().Get()); got != 0 {
		t.Errorf("len(AvailableVehicles) = %v, want 0", got)
	}
}

func TestBoardStore_MutateUnknownJourney(t *testing.T) {
	store := newTestBoard(t, newMemorySource(t, boardDataset()))
	loadBoard(t, store)
	version := store.Journeys().Version()

	store.AssignVehicle(context.Background(), 99, 1)

	if got := store.Journeys().Version(); got != version {
		t.Errorf("Journeys version = %v, want %v (no local write)", got, version)
	}

	store.Wait()
	if msg := store.Error().Get(); msg != "Journey not found" {
		t.Errorf("Error = %q, want %q", msg, "Journey not found")
	}
}

func TestBoardStore_StatusTransitionIsCallerEnforced(t *testing.T) {
	store := newTestBoard(t, newMemorySource(t, boardDataset()))
	loadBoard(t, store)
	ctx := context.Background()

	store.StartJourney(ctx, 2)
	store.FinishJourney(ctx, 2)
	if j, _ := store.Journey(2); j.Status != StatusFinished {
		t.Fatalf("Status = %v, want Finished", j.Status)
	}

	// regressing is accepted
	if err := store.UpdateJourneyStatus(ctx, 2, StatusScheduled); err != nil {
		t.Fatalf("UpdateJourneyStatus() error = %v", err)
	}
	store.Wait()

	if j, _ := store.Journey(2); j.Status != StatusScheduled {
		t.Errorf("Status = %v, want Scheduled", j.Status)
	}
	if msg := store.Error().Get(); msg != "" {
		t.Errorf("Error = %q, want empty", msg)
	}
}

func TestBoardStore_UpdateJourneyStatusRejectsUnknownStatus(t *testing.T) {
	store := newTestBoard(t, newMemorySource(t, boardDataset()))
	loadBoard(t, store)
	version := store.Journeys().Version()

	if err := store.UpdateJourneyStatus(context.Background(), 2, "Cancelled"); err == nil {
		t.Error("UpdateJourneyStatus() error = nil, want error")
	}
	if got := store.Journeys().Version(); got != version {
		t.Errorf("Journeys version = %v, want %v", got, version)
	}
}

func TestBoardStore_DanglingVehicleReadsAsUnassigned(t *testing.T) {
	data := boardDataset()
	data[remote.Journeys][1]["assignedVehicleId"] = 42
	store := newTestBoard(t, newMemorySource(t, data))
	loadBoard(t, store)

	if v, ok := store.AssignedVehicle(2); ok {
		t.Errorf("AssignedVehicle(2) = %+v, want unassigned", v)
	}
	if v, ok := store.AssignedVehicle(1); !ok || v.ID != 1 {
		t.Errorf("AssignedVehicle(1) = %+v, %v, want vehicle 1", v, ok)
	}
	if _, ok := store.AssignedVehicle(99); ok {
		t.Error("AssignedVehicle(99) found, want unknown journey")
	}
	if got := ids(store.AvailableVehicles().Get(), vehicleID); !equalInts(got, []int{3}) {
		t.Errorf("AvailableVehicles = %v, want [3]", got)
	}
}

func TestBoardStore_WatcherCoalescesBatchedMutations(t *testing.T) {
	store := newTestBoard(t, newMemorySource(t, boardDataset()))
	loadBoard(t, store)
	ctx := context.Background()

	var mu sync.Mutex
	var observed [][]int
	w := store.Watch("board", func(s *reactive.Scope) error {
		scheduled := ids(store.ScheduledJourneys().Read(s), journeyID)
		available := ids(store.AvailableVehicles().Read(s), vehicleID)
		mu.Lock()
		observed = append(observed, append(scheduled, available...))
		mu.Unlock()
		return nil
	})

	store.Runtime().Batch(func() {
		store.AssignVehicle(ctx, 2, 3)
		store.StartJourney(ctx, 2)
		store.StartJourney(ctx, 3)
	})

	if got := w.Runs(); got != 2 {
		t.Fatalf("Runs() = %v, want 2 (initial + one per settle cycle)", got)
	}
	mu.Lock()
	last := observed[len(observed)-1]
	mu.Unlock()
	// no scheduled journeys left and no vehicle free
	if len(last) != 0 {
		t.Errorf("last observation = %v, want empty", last)
	}
}

func TestBoardStore_TasksByJourney(t *testing.T) {
	store := newTestBoard(t, newMemorySource(t, remote.SeedDataset()))
	loadBoard(t, store)

	grouped := store.TasksByJourney().Get()
	if got := len(grouped[2]); got != 2 {
		t.Errorf("len(tasks for journey 2) = %v, want 2", got)
	}
	if got := len(grouped[8]); got != 1 {
		t.Errorf("len(tasks for journey 8) = %v, want 1", got)
	}
	if got := len(grouped[1]); got != 0 {
		t.Errorf("len(tasks for journey 1) = %v, want 0", got)
	}
}

func TestBoardStore_Snapshot(t *testing.T) {
	store := newTestBoard(t, newMemorySource(t, remote.SeedDataset()))
	loadBoard(t, store)

	snap := store.Snapshot().Get()
	if len(snap.Journeys) != 8 || len(snap.Vehicles) != 5 {
		t.Errorf("snapshot has %d journeys and %d vehicles, want 8 and 5", len(snap.Journeys), len(snap.Vehicles))
	}
	if got := len(snap.Scheduled) + len(snap.InProgress) + len(snap.Finished); got != 8 {
		t.Errorf("partition total = %v, want 8", got)
	}
	// vehicles 1, 2 and 3 are referenced by the seed journeys
	if got := ids(snap.AvailableVehicles, vehicleID); !equalInts(got, []int{4, 5}) {
		t.Errorf("AvailableVehicles = %v, want [4 5]", got)
	}
	if snap.IsLoading || snap.Error != "" {
		t.Errorf("IsLoading = %v, Error = %q, want idle", snap.IsLoading, snap.Error)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(decoded.TasksByJourney[2]) != 2 {
		t.Errorf("decoded tasks for journey 2 = %v, want 2", len(decoded.TasksByJourney[2]))
	}
}

func TestBoardStore_SharedRuntime(t *testing.T) {
	rt := reactive.NewRuntime(reactive.WithRuntimeLogger(testLogger()))
	board := newTestBoard(t, newMemorySource(t, boardDataset()), WithRuntime(rt))
	cart, err := NewCartStore(WithSource(newMemorySource(t, remote.SeedDataset())), WithRuntime(rt), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewCartStore() error = %v", err)
	}

	if board.Runtime() != rt || cart.Runtime() != rt {
		t.Fatal("stores did not adopt the shared runtime")
	}

	var runs atomic.Int32
	rt.Watch("both", func(s *reactive.Scope) error {
		board.Journeys().Read(s)
		cart.Products().Read(s)
		runs.Add(1)
		return nil
	})

	rt.Batch(func() {
		// delayed so the completion lands after the batch closes
		board.LoadJourneys(context.Background(), LoadOptions{Delay: 30 * time.Millisecond})
		_ = cart.SetProducts([]Product{{ID: 1, Name: "Pen", Price: 1, Quantity: 1}})
	})
	board.Wait()

	// initial run, the batch, the journeys completion
	if got := runs.Load(); got != 3 {
		t.Errorf("runs = %v, want 3", got)
	}
}

type fakeRecorder struct {
	mu       sync.Mutex
	loads    []string
	persists []string
	failures int
}

func (r *fakeRecorder) ObserveLoad(collection string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, collection)
	if err != nil {
		r.failures++
	}
}

func (r *fakeRecorder) ObservePersist(collection string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persists = append(r.persists, collection)
	if err != nil {
		r.failures++
	}
}

func TestBoardStore_Metrics(t *testing.T) {
	rec := &fakeRecorder{}
	store := newTestBoard(t, newMemorySource(t, boardDataset()), WithMetrics(rec))

	store.LoadJourneys(context.Background(), LoadOptions{})
	store.Wait()
	store.AssignVehicle(context.Background(), 99, 1)
	store.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.loads) != 1 || rec.loads[0] != remote.Journeys {
		t.Errorf("loads = %v, want [journeys]", rec.loads)
	}
	if len(rec.persists) != 1 {
		t.Errorf("persists = %v, want one", rec.persists)
	}
	if rec.failures != 1 {
		t.Errorf("failures = %v, want 1", rec.failures)
	}
}
