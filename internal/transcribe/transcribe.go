package transcribe

import "context"

// Request describes one transcription job. The service reads the media from
// MediaURI and writes its JSON result to OutputKey in the pipeline's bucket;
// the caller never waits for completion.
type Request struct {
	JobName   string
	MediaURI  string
	MediaKey  string
	OutputKey string
}

type Transcriber interface {
	// Start submits the job and returns once it is accepted. The transcript
	// object appears asynchronously.
	Start(ctx context.Context, req Request) error
}
