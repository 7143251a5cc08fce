package transcribe

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	transcribeservice "github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"
)

// languageOptions is the fixed candidate set the service picks from when
// identifying the spoken language.
var languageOptions = []types.LanguageCode{
	types.LanguageCodeEnUs,
	types.LanguageCodeUkUa,
	types.LanguageCodeRuRu,
}

type AWSTranscriber struct {
	client       *transcribeservice.Client
	outputBucket string
}

var _ Transcriber = (*AWSTranscriber)(nil)

func NewAWSTranscriber(ctx context.Context, region, outputBucket string) (*AWSTranscriber, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(ctx, aws_config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSTranscriber{
		client:       transcribeservice.NewFromConfig(awsCfg),
		outputBucket: outputBucket,
	}, nil
}

func (t *AWSTranscriber) Start(ctx context.Context, req Request) error {
	_, err := t.client.StartTranscriptionJob(ctx, &transcribeservice.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(req.JobName),
		Media:                &types.Media{MediaFileUri: aws.String(req.MediaURI)},
		MediaFormat:          types.MediaFormatM4a,
		IdentifyLanguage:     aws.Bool(true),
		LanguageOptions:      languageOptions,
		OutputBucketName:     aws.String(t.outputBucket),
		OutputKey:            aws.String(req.OutputKey),
	})
	if err != nil {
		return fmt.Errorf("failed to start transcription job %s for %s: %w", req.JobName, req.MediaURI, err)
	}

	return nil
}
