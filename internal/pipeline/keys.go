package pipeline

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Key conventions are the only coupling between stages. They are fixed
// constants rather than configuration so that every deployment of the
// pipeline agrees on them.
const (
	AudioPrefix       = "audio/"
	TranscriptsPrefix = "transcripts/"
	TasksPrefix       = "tasks/"

	audioExt      = ".m4a"
	transcriptExt = ".json"
	TaskSuffix    = "-tasks.txt"

	jobNamePrefix = "transcribe-"
)

// NewAudioKey generates a fresh audio object key. The 128-bit random uuid
// makes collisions negligible across independent uploaders.
func NewAudioKey() string {
	return AudioPrefix + uuid.NewString() + audioExt
}

// NewJobName generates a transcription job name. Names are unique per
// attempt, so a redelivered audio event starts a second job instead of
// colliding with the first.
func NewJobName() string {
	return jobNamePrefix + uuid.NewString()
}

// TranscriptKey is where the transcription service writes the result of the
// named job.
func TranscriptKey(jobName string) string {
	return TranscriptsPrefix + jobName + transcriptExt
}

// TaskKeyForTranscript maps a transcript key to its task key:
// transcripts/X.json -> tasks/X-tasks.txt. The mapping is a pure function of
// the key string, so every replay of the same transcript lands on the same
// task key.
func TaskKeyForTranscript(transcriptKey string) string {
	name := strings.TrimPrefix(transcriptKey, TranscriptsPrefix)
	name = strings.TrimSuffix(name, transcriptExt)
	return TasksPrefix + name + TaskSuffix
}

// IsHiddenTranscript reports whether a transcript key is a temporary or
// partial artifact. The transcription service writes dot-files (e.g.
// transcripts/.write_access_check_file.temp) before the real result.
func IsHiddenTranscript(key string) bool {
	return strings.HasPrefix(key, TranscriptsPrefix+".")
}

// JobNameFromTranscriptKey recovers the transcription job name embedded in a
// transcript key.
func JobNameFromTranscriptKey(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, TranscriptsPrefix), transcriptExt)
}

// JobNameFromTaskKey recovers the transcription job name embedded in a task
// key.
func JobNameFromTaskKey(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, TasksPrefix), TaskSuffix)
}

// SubmissionIdFromAudioKey recovers the submission uuid from an audio key.
// Objects uploaded out-of-band may not follow the convention; callers treat
// an error as "no submission record to update".
func SubmissionIdFromAudioKey(key string) (uuid.UUID, error) {
	name := strings.TrimSuffix(strings.TrimPrefix(key, AudioPrefix), audioExt)
	id, err := uuid.Parse(name)
	if err != nil {
		return uuid.Nil, fmt.Errorf("audio key %q does not embed a submission id: %w", key, err)
	}
	return id, nil
}
