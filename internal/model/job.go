package model

import "time"

// Input references the multi-modal material submitted for verification.
// At least one field must be set; resolution priority is text, URL, audio,
// image (matching the ingest normalizer).
type Input struct {
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
	AudioPath string `json:"audio_path,omitempty"`
	VideoPath string `json:"video_path,omitempty"`
}

// SourceKind records which input modality supplied the verified text.
type SourceKind string

const (
	SourceText  SourceKind = "text"
	SourceURL   SourceKind = "url"
	SourceAudio SourceKind = "audio"
	SourceImage SourceKind = "image"
)

// JobStatus is the lifecycle state of a verification job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobExtracting JobStatus = "extracting"
	JobRetrieving JobStatus = "retrieving"
	JobDebating   JobStatus = "debating"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Job is one verification run. It is owned exclusively by the orchestrator
// for its lifetime and immutable once Done or Failed.
type Job struct {
	ID            string     `json:"id"`
	Input         Input      `json:"input"`
	Source        SourceKind `json:"source,omitempty"`
	Status        JobStatus  `json:"status"`
	Claims        []Claim    `json:"claims,omitempty"`
	Verdict       *Verdict   `json:"verdict,omitempty"`
	VisualNotes   []string   `json:"visual_notes,omitempty"` // keyframe/forensics notes from collaborators
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   time.Time  `json:"completed_at,omitempty"`
}

// JobResult is a read-only snapshot of a job handed to callers.
type JobResult struct {
	JobID         string     `json:"job_id"`
	Status        JobStatus  `json:"status"`
	Source        SourceKind `json:"source,omitempty"`
	Claims        []Claim    `json:"claims,omitempty"`
	Verdict       *Verdict   `json:"verdict,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   time.Time  `json:"completed_at,omitempty"`
}

// ProgressEvent is one entry in a job's ordered progress stream. Seq is
// monotonic per job; cross-claim interleaving is unspecified.
type ProgressEvent struct {
	JobID   string                 `json:"job_id"`
	Seq     uint64                 `json:"seq"`
	Stage   string                 `json:"stage"`
	ClaimID string                 `json:"claim_id,omitempty"`
	Message string                 `json:"message"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	At      time.Time              `json:"at"`
}
