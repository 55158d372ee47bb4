package dto

// ErrorTypeSummary aggregates failures of one error type.
type ErrorTypeSummary struct {
	ErrorType      string       `json:"error_type"`
	Count          int          `json:"count"`
	Percentage     float64      `json:"percentage"`
	UniqueMessages []string     `json:"unique_messages"`
	TopStages      []StageCount `json:"top_stages"`
}

// StageCount is the number of failures recorded at one pipeline stage.
type StageCount struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

// ErrorLogAnalysis summarises the stored error log.
type ErrorLogAnalysis struct {
	TotalErrors int                `json:"total_errors"`
	ErrorTypes  []ErrorTypeSummary `json:"error_types"`
}
