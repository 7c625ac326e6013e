package errors

import "fmt"

// Report is the user-facing description of a run or commit failure.
type Report struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Stage     int            `json:"stage"`
	Operator  string         `json:"operator,omitempty"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// ToReport converts an AppError into a Report.
func (e *AppError) ToReport() Report {
	return Report{
		Code:      e.Code,
		Message:   e.Message,
		Stage:     e.Stage,
		Operator:  e.Operator,
		Retryable: e.Retryable,
		Details:   e.Details,
	}
}

// Describe builds a Report for any error. Errors without an AppError in
// their chain are reported as internal.
func Describe(err error) Report {
	if err == nil {
		return Report{}
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr.ToReport()
	}
	return Internal(err).ToReport()
}

// String renders the report for display, e.g.
// "stage 2 (filter): CONFIG_VALIDATION: invalid filter options: expr: is required".
func (r Report) String() string {
	if r.Code == "" {
		return ""
	}
	prefix := string(r.Code)
	if r.Stage != NoStage {
		if r.Operator != "" {
			prefix = fmt.Sprintf("stage %d (%s): %s", r.Stage, r.Operator, r.Code)
		} else {
			prefix = fmt.Sprintf("stage %d: %s", r.Stage, r.Code)
		}
	}
	s := prefix + ": " + r.Message
	if kind, ok := r.Details["kind"].(string); ok {
		s += " [" + kind + "]"
	}
	return s
}
