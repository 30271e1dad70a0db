package remote

// SeedDataset returns the dispatch board fixtures: eight journeys, five
// vehicles, three tasks and the cart's six products.
//
// Every call returns a fresh dataset, so sources seeded from it never share
// state.
func SeedDataset() Dataset {
	return Dataset{
		Journeys: {
			journey(1, "Journey to Paris", "2025-11-05T08:00:00Z", "2025-11-05T12:00:00Z", "Scheduled", nil),
			journey(2, "Journey to Lyon", "2025-11-05T09:00:00Z", "2025-11-05T14:00:00Z", "InProgress", 1),
			journey(3, "Journey to Marseille", "2025-11-05T10:00:00Z", "2025-11-05T16:00:00Z", "Scheduled", 2),
			journey(4, "Journey to Bordeaux", "2025-11-05T11:00:00Z", "2025-11-05T17:00:00Z", "Scheduled", nil),
			journey(5, "Journey to Toulouse", "2025-11-05T13:00:00Z", "2025-11-05T19:00:00Z", "Finished", 3),
			journey(6, "Journey to Nice", "2025-11-06T08:00:00Z", "2025-11-06T13:00:00Z", "Scheduled", nil),
			journey(7, "Journey to Strasbourg", "2025-11-06T09:30:00Z", "2025-11-06T15:30:00Z", "Scheduled", nil),
			journey(8, "Journey to Lille", "2025-11-06T10:00:00Z", "2025-11-06T14:00:00Z", "InProgress", 1),
		},
		Vehicles: {
			{"id": 1, "number": "VEH-001", "capacity": 50},
			{"id": 2, "number": "VEH-002", "capacity": 40},
			{"id": 3, "number": "VEH-003", "capacity": 60},
			{"id": 4, "number": "VEH-004", "capacity": 35},
			{"id": 5, "number": "VEH-005", "capacity": 55},
		},
		Tasks: {
			{"id": 1, "title": "Prepare vehicle VEH-001", "journeyId": 2, "completed": false},
			{"id": 2, "title": "Check route to Lyon", "journeyId": 2, "completed": true},
			{"id": 3, "title": "Load passengers", "journeyId": 8, "completed": false},
		},
		Products: {
			{"id": 1, "name": "Laptop", "price": 999.99, "quantity": 1},
			{"id": 2, "name": "Mouse", "price": 29.99, "quantity": 2},
			{"id": 3, "name": "Keyboard", "price": 79.99, "quantity": 1},
			{"id": 4, "name": "Monitor", "price": 299.99, "quantity": 1},
			{"id": 5, "name": "Headphones", "price": 149.99, "quantity": 0},
			{"id": 6, "name": "Webcam", "price": 89.99, "quantity": 0},
		},
	}
}

// journey builds a journey record; vehicle is nil or an int.
func journey(id int, title, start, end, status string, vehicle any) map[string]any {
	return map[string]any{
		"id":                id,
		"title":             title,
		"startTime":         start,
		"endTime":           end,
		"status":            status,
		"assignedVehicleId": vehicle,
	}
}
