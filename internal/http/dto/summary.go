package dto

type ProjectSummaryResponse struct {
	Date            string `json:"date"`
	ProjectName     string `json:"project_name"`
	Language        string `json:"language"`
	Category        string `json:"category"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type ActivityTotalResponse struct {
	Date             string `json:"date"`
	CodingSeconds    int64  `json:"coding_seconds"`
	DebuggingSeconds int64  `json:"debugging_seconds"`
}

type SummariesResponse struct {
	From     string                   `json:"from"`
	To       string                   `json:"to"`
	Projects []ProjectSummaryResponse `json:"projects"`
	Totals   []ActivityTotalResponse  `json:"totals"`
}
