package dispatchboard

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestJourneyStatus_Next(t *testing.T) {
	tests := []struct {
		status   JourneyStatus
		wantNext JourneyStatus
		wantOK   bool
	}{
		{StatusScheduled, StatusInProgress, true},
		{StatusInProgress, StatusFinished, true},
		{StatusFinished, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			next, ok := tt.status.Next()
			if next != tt.wantNext || ok != tt.wantOK {
				t.Errorf("Next() = %v, %v, want %v, %v", next, ok, tt.wantNext, tt.wantOK)
			}
		})
	}
}

func TestParseJourneyStatus(t *testing.T) {
	for _, s := range JourneyStatuses {
		got, err := ParseJourneyStatus(s.String())
		if err != nil || got != s {
			t.Errorf("ParseJourneyStatus(%q) = %v, %v, want %v", s, got, err, s)
		}
	}

	for _, bad := range []string{"", "scheduled", "Cancelled"} {
		if _, err := ParseJourneyStatus(bad); err == nil {
			t.Errorf("ParseJourneyStatus(%q) error = nil, want error", bad)
		}
	}
}

func TestJourney_UnmarshalJSON(t *testing.T) {
	data := []byte(`{"id":2,"title":"Journey to Lyon","startTime":"2025-11-05T09:00:00Z","endTime":"2025-11-05T14:00:00Z","status":"InProgress","assignedVehicleId":1}`)

	var j Journey
	if err := json.Unmarshal(data, &j); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if j.Status != StatusInProgress {
		t.Errorf("Status = %v, want InProgress", j.Status)
	}
	if j.AssignedVehicleID == nil || *j.AssignedVehicleID != 1 {
		t.Errorf("AssignedVehicleID = %v, want 1", j.AssignedVehicleID)
	}
	if j.StartTime.Hour() != 9 {
		t.Errorf("StartTime = %v, want 09:00", j.StartTime)
	}
}

func TestJourney_UnmarshalJSONRejectsUnknownStatus(t *testing.T) {
	var j Journey
	if err := json.Unmarshal([]byte(`{"id":1,"status":"Lost"}`), &j); err == nil {
		t.Error("Unmarshal() error = nil, want error for unknown status")
	}
}

func TestJourney_NullVehicle(t *testing.T) {
	var j Journey
	if err := json.Unmarshal([]byte(`{"id":1,"status":"Scheduled","assignedVehicleId":null}`), &j); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if j.AssignedVehicleID != nil {
		t.Errorf("AssignedVehicleID = %v, want nil", *j.AssignedVehicleID)
	}

	out, err := json.Marshal(j)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if v, ok := fields["assignedVehicleId"]; !ok || v != nil {
		t.Errorf("assignedVehicleId = %v (present %v), want explicit null", v, ok)
	}
}

func TestProduct_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Product
		wantErr bool
	}{
		{"valid", `{"id":1,"name":"Mouse","price":29.99,"quantity":2}`, Product{ID: 1, Name: "Mouse", Price: 29.99, Quantity: 2}, false},
		{"zero quantity", `{"id":2,"name":"Cable","price":5,"quantity":0}`, Product{ID: 2, Name: "Cable", Price: 5}, false},
		{"negative quantity", `{"id":3,"name":"Desk","price":1,"quantity":-5}`, Product{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Product
			err := json.Unmarshal([]byte(tt.input), &p)
			if tt.wantErr {
				if !errors.Is(err, ErrNegativeQuantity) {
					t.Errorf("Unmarshal() error = %v, want ErrNegativeQuantity", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if p != tt.want {
				t.Errorf("Unmarshal() = %+v, want %+v", p, tt.want)
			}
		})
	}
}
