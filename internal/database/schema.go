package database

import (
	"time"

	"github.com/google/uuid"
)

// Submission statuses form the pipeline's implicit state machine. Transitions
// are driven by object-created events, so a row may legitimately skip states
// (a duplicate delivery can replay an earlier stage) or stall forever (an
// upstream job never produced its output object).
const (
	SubmissionUploaded               string = "UPLOADED"
	SubmissionTranscriptionRequested string = "TRANSCRIPTION_REQUESTED"
	SubmissionTranscribed            string = "TRANSCRIBED"
	SubmissionTasksExtracted         string = "TASKS_EXTRACTED"
	SubmissionNotified               string = "NOTIFIED"
)

// Submission tracks one voice memo through the pipeline. The id is the uuid
// embedded in the audio key; the transcription job name links the audio
// object to the transcript and task objects derived from it.
type Submission struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	AudioKey      string `gorm:"not null"`
	JobName       string `gorm:"index"`
	TranscriptKey string
	TaskKey       string

	Status string `gorm:"size:30;not null"`

	CreationTime time.Time
	UpdatedTime  time.Time `gorm:"autoUpdateTime"`
}
