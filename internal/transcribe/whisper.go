package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"memo-backend/internal/storage"

	"github.com/go-resty/resty/v2"
)

// TranscriptDocument is the JSON shape the transcription service writes to
// the store. Downstream stages depend on results.transcripts[0].transcript.
type TranscriptDocument struct {
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
	} `json:"results"`
}

func NewTranscriptDocument(text string) TranscriptDocument {
	var doc TranscriptDocument
	doc.Results.Transcripts = []struct {
		Transcript string `json:"transcript"`
	}{{Transcript: text}}
	return doc
}

// WhisperTranscriber transcribes against a whisper.cpp-compatible HTTP
// server. It mimics the managed service's contract: Start returns once the
// job is accepted, and the transcript object is written to the store in the
// background, re-entering the pipeline through the store's notification path.
type WhisperTranscriber struct {
	client *resty.Client
	store  storage.ObjectStore
}

var _ Transcriber = (*WhisperTranscriber)(nil)

func NewWhisperTranscriber(serverURL string, store storage.ObjectStore) *WhisperTranscriber {
	client := resty.New().
		SetBaseURL(serverURL).
		SetTimeout(5 * time.Minute)

	return &WhisperTranscriber{client: client, store: store}
}

func (t *WhisperTranscriber) Start(ctx context.Context, req Request) error {
	go func() {
		if err := t.run(context.Background(), req); err != nil {
			slog.Error("whisper transcription job failed", "job_name", req.JobName, "error", err)
		}
	}()
	return nil
}

type whisperResponse struct {
	Text string `json:"text"`
}

func (t *WhisperTranscriber) run(ctx context.Context, req Request) error {
	obj, err := t.store.GetObject(ctx, req.MediaKey)
	if err != nil {
		return fmt.Errorf("failed to read media %s: %w", req.MediaKey, err)
	}
	defer obj.Close()

	audio, err := io.ReadAll(obj)
	if err != nil {
		return fmt.Errorf("failed to read media %s: %w", req.MediaKey, err)
	}

	var result whisperResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetFileReader("file", path.Base(req.MediaKey), bytes.NewReader(audio)).
		SetFormData(map[string]string{"response_format": "json"}).
		SetResult(&result).
		Post("/inference")
	if err != nil {
		return fmt.Errorf("whisper server request failed for job %s: %w", req.JobName, err)
	}
	if resp.IsError() {
		return fmt.Errorf("whisper server returned %s for job %s: %s", resp.Status(), req.JobName, resp.String())
	}

	doc, err := json.Marshal(NewTranscriptDocument(result.Text))
	if err != nil {
		return fmt.Errorf("failed to marshal transcript for job %s: %w", req.JobName, err)
	}

	if err := t.store.PutObject(ctx, req.OutputKey, bytes.NewReader(doc)); err != nil {
		return fmt.Errorf("failed to write transcript %s: %w", req.OutputKey, err)
	}

	slog.Info("whisper transcription complete", "job_name", req.JobName, "output_key", req.OutputKey)
	return nil
}
