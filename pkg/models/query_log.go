package models

import (
	"strings"
	"time"
)

// Status classifies a completed analysis.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ComputeStatus derives the entry status from the halves that ran. A nil
// result means that half was not requested and does not count either way.
func ComputeStatus(disease *DiseaseResult, ifs *IFSResult) Status {
	requested, failed := 0, 0
	if disease != nil {
		requested++
		if disease.Failed() {
			failed++
		}
	}
	if ifs != nil {
		requested++
		if ifs.Failed() {
			failed++
		}
	}
	switch {
	case requested == 0 || failed == requested:
		return StatusFailed
	case failed > 0:
		return StatusPartial
	default:
		return StatusOK
	}
}

// InputSnapshot is the displayable subset of an AnalysisRequest.
type InputSnapshot struct {
	Location         string `json:"location,omitempty"`
	District         string `json:"district,omitempty"`
	Crop             string `json:"crop,omitempty"`
	SoilType         string `json:"soil_type,omitempty"`
	ImageSupplied    bool   `json:"image_supplied"`
	ImageSize        int    `json:"image_size,omitempty"`
	ImageContentType string `json:"image_content_type,omitempty"`
}

// QueryLogDraft is an assembled analysis that has not been stored yet.
type QueryLogDraft struct {
	Input        InputSnapshot  `json:"input"`
	Disease      *DiseaseResult `json:"disease_result"`
	IFS          *IFSResult     `json:"ifs_result"`
	Status       Status         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// QueryLogEntry is one persisted, immutable analysis record. ID and CreatedAt
// are assigned by the store.
type QueryLogEntry struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	QueryLogDraft
}

// QueryLogSummary is the history listing view of an entry.
type QueryLogSummary struct {
	ID        int64         `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Input     InputSnapshot `json:"input"`
	Status    Status        `json:"status"`
}

// JoinErrors builds the error_message column from the failed halves.
func JoinErrors(disease *DiseaseResult, ifs *IFSResult) string {
	var parts []string
	if disease.Failed() {
		parts = append(parts, "disease: "+disease.Error)
	}
	if ifs.Failed() {
		parts = append(parts, "ifs: "+ifs.Error)
	}
	return strings.Join(parts, "; ")
}
