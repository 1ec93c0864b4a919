package hermes

import "time"

type ProjectEvent struct {
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name,omitempty"`
	Change    string    `json:"change,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CalculationRequestEvent asks the broker to recalculate a project.
type CalculationRequestEvent struct {
	ProjectID string `json:"project_id"`
	Source    string `json:"source,omitempty"`
}

type CalculationCompletedEvent struct {
	ProjectID     string   `json:"project_id"`
	CalculationID string   `json:"calculation_id"`
	Ranking       []string `json:"ranking"`
	LowConfidence bool     `json:"low_confidence"`
	DurationMs    int64    `json:"duration_ms"`
}

type CalculationFailedEvent struct {
	ProjectID string `json:"project_id"`
	Error     string `json:"error"`
	// Rule is the violated validation rule, empty for infrastructure failures.
	Rule string `json:"rule,omitempty"`
}
