package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// AlertTestRequest is the request body for alert/test.
type AlertTestRequest struct {
	Text string `json:"text" validate:"required,max=200,printascii"`
}

// ThresholdRequest is the request body for alarm/threshold.
type ThresholdRequest struct {
	Threshold float64 `json:"threshold" validate:"gt=0,lt=1"`
}

// AudioUpdateRequest is the request body for audio/update.
type AudioUpdateRequest struct {
	Device string `json:"device" validate:"omitempty,max=256"`
}

// EventsRequest is the request body for events/list and the query of GET /api/events.
type EventsRequest struct {
	Limit  int    `json:"limit" validate:"gte=0,lte=500"`
	Offset int    `json:"offset" validate:"gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=alarm alert input system evidence"`
}
