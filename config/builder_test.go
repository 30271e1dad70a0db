package config

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/jpalmerr/dispatchboard"
	"github.com/jpalmerr/dispatchboard/remote"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildSource_Memory(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	src, err := BuildSource(cfg)
	if err != nil {
		t.Fatalf("BuildSource() error = %v", err)
	}
	mem, ok := src.(*remote.MemorySource)
	if !ok {
		t.Fatalf("BuildSource() = %T, want *remote.MemorySource", src)
	}

	var journeys []dispatchboard.Journey
	if err := mem.List(context.Background(), remote.Journeys, remote.CallOptions{}, &journeys); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(journeys) != 8 {
		t.Errorf("len(journeys) = %d, want 8", len(journeys))
	}
}

func TestBuildSource_HTTP(t *testing.T) {
	var gotAuth, gotTrace string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTrace = r.Header.Get("X-Trace")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id": 1, "number": "VEH-001", "capacity": 50}]`)
	}))
	defer ts.Close()

	cfg := &Config{
		APIURL:  ts.URL,
		Timeout: Duration(2 * time.Second),
		Headers: map[string]string{"Authorization": "Bearer t", "X-Trace": "on"},
	}

	src, err := BuildSource(cfg)
	if err != nil {
		t.Fatalf("BuildSource() error = %v", err)
	}
	if _, ok := src.(*remote.HTTPSource); !ok {
		t.Fatalf("BuildSource() = %T, want *remote.HTTPSource", src)
	}

	var vehicles []dispatchboard.Vehicle
	if err := src.List(context.Background(), remote.Vehicles, remote.CallOptions{}, &vehicles); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(vehicles) != 1 || vehicles[0].Number != "VEH-001" {
		t.Errorf("vehicles = %+v", vehicles)
	}
	if gotAuth != "Bearer t" || gotTrace != "on" {
		t.Errorf("headers = %q, %q, want configured values", gotAuth, gotTrace)
	}
}

func TestBuildSource_InvalidURL(t *testing.T) {
	// Build is also reachable with configs that skipped validation
	cfg := &Config{APIURL: "http://", Timeout: Duration(time.Second)}
	if _, err := BuildSource(cfg); err == nil {
		t.Error("BuildSource() with hostless url error = nil, want error")
	}
}

func TestBuild_PersistOptions(t *testing.T) {
	cfg, err := Parse([]byte("persist:\n  simulate_error: true\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, src, err := Build(cfg, testLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if src == nil {
		t.Fatal("Build() source = nil")
	}

	store, err := dispatchboard.NewBoardStore(opts...)
	if err != nil {
		t.Fatalf("NewBoardStore() error = %v", err)
	}
	store.LoadJourneys(context.Background(), cfg.Load.Options())
	store.Wait()

	store.AssignVehicle(context.Background(), 1, 4)
	store.Wait()

	// persist failure is configured, so the local change stays and the error surfaces
	if msg := store.Error().Get(); msg != remote.SimulatedErrorMessage {
		t.Errorf("Error = %q, want %q", msg, remote.SimulatedErrorMessage)
	}
	if v, ok := store.AssignedVehicle(1); ok {
		t.Errorf("AssignedVehicle(1) = %+v before vehicles load, want none", v)
	}
	if j, _ := store.Journey(1); j.AssignedVehicleID == nil || *j.AssignedVehicleID != 4 {
		t.Errorf("Journey(1).AssignedVehicleID = %v, want 4", j.AssignedVehicleID)
	}
}

func TestSortedPairs(t *testing.T) {
	got := sortedPairs(map[string]string{"b": "2", "a": "1", "c": "3"})
	want := [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sortedPairs() = %v, want %v", got, want)
	}
}
