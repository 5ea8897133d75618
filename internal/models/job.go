package models

import (
	"time"
)

// JobStatus is the pipeline stage a job is in, or its terminal outcome.
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"
	JobStatusUploading   JobStatus = "uploading"
	JobStatusExtracting  JobStatus = "extracting"
	JobStatusAnalyzing   JobStatus = "analyzing"
	JobStatusSummarizing JobStatus = "summarizing"
	JobStatusFinalizing  JobStatus = "finalizing"
	JobStatusComplete    JobStatus = "complete"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

var statusOrder = map[JobStatus]int{
	JobStatusQueued:      0,
	JobStatusUploading:   1,
	JobStatusExtracting:  2,
	JobStatusAnalyzing:   3,
	JobStatusSummarizing: 4,
	JobStatusFinalizing:  5,
	JobStatusComplete:    6,
	JobStatusFailed:      6,
	JobStatusCancelled:   6,
}

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed || s == JobStatusCancelled
}

// CanAdvanceTo reports whether moving from s to next keeps the pipeline moving forward.
func (s JobStatus) CanAdvanceTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	from, ok1 := statusOrder[s]
	to, ok2 := statusOrder[next]
	if !ok1 || !ok2 {
		return false
	}
	return to >= from
}

// JobKind tells whether a job started from an uploaded file or from raw text.
type JobKind string

const (
	JobKindDocument JobKind = "document"
	JobKindText     JobKind = "text"
)

type Job struct {
	ID            string     `json:"id" db:"id"`
	Kind          JobKind    `json:"kind" db:"kind"`
	Filename      string     `json:"filename,omitempty" db:"filename"`
	FileSize      int64      `json:"file_size" db:"file_size"`
	ContentType   string     `json:"content_type,omitempty" db:"content_type"`
	StagingKey    string     `json:"-" db:"staging_key"`
	Status        JobStatus  `json:"status" db:"status"`
	Stage         string     `json:"stage" db:"stage"`
	StageProgress float64    `json:"stage_progress" db:"stage_progress"`
	Progress      float64    `json:"progress" db:"progress"`
	PageCount     int        `json:"page_count,omitempty" db:"page_count"`
	TextLength    int        `json:"text_length,omitempty" db:"text_length"`
	Error         string     `json:"error,omitempty" db:"error"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Clone returns a copy safe to hand to other goroutines.
func (j *Job) Clone() *Job {
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// UploadRequest is a validated file handed to the pipeline.
type UploadRequest struct {
	File        []byte
	Filename    string
	ContentType string
}

type JobResponse struct {
	Job     *Job   `json:"job"`
	Message string `json:"message,omitempty"`
}
