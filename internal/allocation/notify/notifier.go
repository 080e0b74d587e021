package notify

import "context"

// AlertMessage represents a notification payload.
type AlertMessage struct {
	Year              int               `json:"year"`
	PlantIDs          []int             `json:"plant_ids,omitempty"`
	ReportID          string            `json:"report_id"`
	ReportURL         string            `json:"report_url"`
	Diagnostics       map[string]any    `json:"diagnostics"`
	RecommendedAction string            `json:"recommended_action"`
	Meta              map[string]string `json:"meta,omitempty"`
}

// Notifier sends notifications.
type Notifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}
