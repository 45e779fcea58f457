package models

// Requests for the detection HTTP endpoints. Defined in domain for consistency and reuse.

type SubmitEventRequest struct {
	Timestamp  string  `json:"timestamp" validate:"omitempty"`
	SourceAddr string  `json:"source_addr" validate:"required,max=64"`
	Username   string  `json:"username" validate:"omitempty,max=128"`
	EventType  string  `json:"event_type" validate:"required,max=50"`
	EventValue float64 `json:"event_value" validate:"gte=0"`
}

type AnalyzeRequest struct {
	Timestamp  string  `json:"timestamp" validate:"omitempty"`
	SourceAddr string  `json:"source_addr" validate:"required,max=64"`
	Username   string  `json:"username" validate:"omitempty,max=128"`
	EventType  string  `json:"event_type" validate:"required,max=50"`
	EventValue float64 `json:"event_value" validate:"gte=0"`
}

type ListLogsRequest struct {
	Limit int `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}
