package domain

// Envelope is the response body of one analysis request.
type Envelope struct {
	CourseID     string        `json:"course_id"`
	StudentCount *int          `json:"student_count"`
	KPIs         KPIs          `json:"kpis"`
	Echo         EchoSection   `json:"echo"`
	Grades       GradesSection `json:"grades"`
	Analysis     Analysis      `json:"analysis"`
}

type EchoSection struct {
	Summary  *Table `json:"summary"`
	Modules  *Table `json:"modules"`
	Students *Table `json:"students,omitempty"`
}

type GradesSection struct {
	Gradebook     *Table `json:"gradebook,omitempty"`
	Summary       *Table `json:"summary"`
	ModuleMetrics *Table `json:"module_metrics"`
}

// Analysis carries either a report or the error that prevented one.
type Analysis struct {
	Text  *AnalysisReport `json:"text"`
	Error *string         `json:"error"`
}
