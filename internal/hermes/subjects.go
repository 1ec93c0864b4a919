package hermes

const (
	SubjectCalculationRequest = "ranker.calculation.request"

	StreamName   = "RANKER_EVENTS"
	StreamMaxAge = "168h" // 7 days
)

// StreamSubjects are persisted by the RANKER_EVENTS stream.
var StreamSubjects = []string{"ranker.project.>", "ranker.calculation.>"}

// Project lifecycle subjects
func SubjectProjectCreated(projectID string) string { return "ranker.project." + projectID + ".created" }
func SubjectProjectUpdated(projectID string) string { return "ranker.project." + projectID + ".updated" }
func SubjectProjectDeleted(projectID string) string { return "ranker.project." + projectID + ".deleted" }

// Calculation outcome subjects
func SubjectCalculationCompleted(projectID string) string {
	return "ranker.calculation." + projectID + ".completed"
}
func SubjectCalculationFailed(projectID string) string {
	return "ranker.calculation." + projectID + ".failed"
}
