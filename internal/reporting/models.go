package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics.
// Business isolation: BusinessID is required.
type CallsSummaryRequest struct {
	BusinessID string    `json:"business_id"`
	Range      TimeRange `json:"range"`
	StaffID    string    `json:"staff_id,omitempty"`
}

type CallsSummary struct {
	BusinessID string    `json:"business_id"`
	StaffID    string    `json:"staff_id,omitempty"`
	Range      TimeRange `json:"range"`

	TotalCalls        int `json:"total_calls"`
	PendingCalls      int `json:"pending_calls"`
	AcknowledgedCalls int `json:"acknowledged_calls"`
	CompletedCalls    int `json:"completed_calls"`
	CancelledCalls    int `json:"cancelled_calls"`

	// Averages cover only calls that reached the respective step.
	AverageResponseSeconds float64 `json:"average_response_seconds"`
	AverageTotalSeconds    float64 `json:"average_total_seconds"`
	MaxResponseSeconds     float64 `json:"max_response_seconds"`

	ByStaff []StaffSummary `json:"by_staff,omitempty"`
}

type StaffSummary struct {
	StaffID                string  `json:"staff_id"`
	Calls                  int     `json:"calls"`
	CompletedCalls         int     `json:"completed_calls"`
	AverageResponseSeconds float64 `json:"average_response_seconds"`
}
