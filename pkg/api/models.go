package api

import (
	"time"

	"github.com/google/uuid"
)

// UploadRequest is the body of POST /upload. The audio payload is base64
// encoded inside a JSON field rather than sent raw so that clients behind
// form-only integrations (shortcuts, webhooks) can submit memos.
type UploadRequest struct {
	Body string `json:"body"`
}

type UploadResponse struct {
	Message  string `json:"message"`
	AudioKey string `json:"audio_key"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Submission struct {
	Id uuid.UUID

	AudioKey      string
	JobName       string `json:"JobName,omitempty"`
	TranscriptKey string `json:"TranscriptKey,omitempty"`
	TaskKey       string `json:"TaskKey,omitempty"`

	Status string

	CreationTime time.Time
	UpdatedTime  time.Time
}

type ListSubmissionsQuery struct {
	Status string `schema:"status"`
	Limit  int    `schema:"limit"`
}
