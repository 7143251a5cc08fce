package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"memo-backend/internal/database"
	"memo-backend/internal/messaging"
	"memo-backend/internal/storage"
	"memo-backend/internal/textgen"
	"memo-backend/internal/transcribe"

	"gorm.io/gorm"
)

const taskPromptTemplate = `Given the following transcript, extract clear actionable tasks in a simple list format:

Transcript:
%s

Tasks:
`

func taskPrompt(transcript string) string {
	return fmt.Sprintf(taskPromptTemplate, transcript)
}

// TaskExtractionStage turns a transcript object into a task object. The task
// key is a pure function of the transcript key and the task content is a
// pure function of the transcript text, so replaying the same transcript
// overwrites the task object with identical content.
//
// Empty, unparseable, or structurally malformed transcripts are logged and
// skipped rather than failing the batch: redelivery could never fix such a
// document, and a poison transcript must not block the rest of the batch
// forever. The data loss is visible in the logs and as a submission stuck in
// TRANSCRIBED with no task key.
type TaskExtractionStage struct {
	db        *gorm.DB
	store     storage.ObjectStore
	generator textgen.Generator
}

var _ Stage = (*TaskExtractionStage)(nil)

func NewTaskExtractionStage(db *gorm.DB, store storage.ObjectStore, generator textgen.Generator) *TaskExtractionStage {
	return &TaskExtractionStage{db: db, store: store, generator: generator}
}

func (s *TaskExtractionStage) Handle(ctx context.Context, rec messaging.ObjectRecord) error {
	if IsHiddenTranscript(rec.Key) {
		slog.Info("skipping temporary transcript artifact", "key", rec.Key)
		return nil
	}

	obj, err := s.store.GetObject(ctx, rec.Key)
	if err != nil {
		return fmt.Errorf("failed to read transcript %s: %w", rec.Key, err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return fmt.Errorf("failed to read transcript %s: %w", rec.Key, err)
	}

	jobName := JobNameFromTranscriptKey(rec.Key)
	if s.db != nil {
		database.MarkTranscribed(ctx, s.db, jobName, rec.Key) //nolint:errcheck
	}

	text, ok := transcriptText(rec.Key, raw)
	if !ok {
		return nil
	}

	tasks, err := s.generator.Generate(ctx, taskPrompt(text))
	if err != nil {
		return fmt.Errorf("failed to generate tasks for %s: %w", rec.Key, err)
	}

	taskKey := TaskKeyForTranscript(rec.Key)
	if err := s.store.PutObject(ctx, taskKey, strings.NewReader(tasks)); err != nil {
		return fmt.Errorf("failed to write task object %s: %w", taskKey, err)
	}

	slog.Info("tasks extracted", "transcript_key", rec.Key, "task_key", taskKey)

	if s.db != nil {
		database.MarkTasksExtracted(ctx, s.db, jobName, rec.Key, taskKey) //nolint:errcheck
	}

	return nil
}

// transcriptText extracts results.transcripts[0].transcript, reporting via
// the second return whether the document was usable.
func transcriptText(key string, raw []byte) (string, bool) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		slog.Error("skipping unparseable transcript", "key", key, "error", err)
		return "", false
	}
	if len(generic) == 0 {
		slog.Warn("skipping empty transcript document", "key", key)
		return "", false
	}

	var doc transcribe.TranscriptDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		slog.Error("skipping malformed transcript", "key", key, "error", err)
		return "", false
	}
	if len(doc.Results.Transcripts) == 0 {
		slog.Error("skipping transcript without results.transcripts[0].transcript", "key", key)
		return "", false
	}

	return doc.Results.Transcripts[0].Transcript, true
}
