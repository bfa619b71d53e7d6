package models

// QualityResult is produced once per generation attempt.
type QualityResult struct {
	IsValid     bool     `json:"isValid"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions,omitempty"`
}
