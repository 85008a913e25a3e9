package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// FileService is the audio blob storage capability. The pipeline only
// needs an upload that returns a durable media URL.
type FileService interface {
	UploadAudio(ctx context.Context, fileName string, file io.Reader) (string, error)
	TestConnection(ctx context.Context) error
}

type fileService struct {
	s3     *s3.Client
	bucket string
	region string
}

func NewFileService(accessKey, secretKey, bucketName, region string) (FileService, error) {
	credProvider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credProvider),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg)

	return &fileService{
		s3:     client,
		bucket: bucketName,
		region: region,
	}, nil
}

// UploadAudio stores a recording under a collision-free key and returns
// the public URL used as the story's media reference
func (s *fileService) UploadAudio(ctx context.Context, fileName string, file io.Reader) (string, error) {
	key := fmt.Sprintf("stories/%s/%s", uuid.New().String(), fileName)

	uploader := manager.NewUploader(s.s3)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to upload audio")
		return "", err
	}

	mediaURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)

	log.Debug().Str("key", key).Msg("Uploaded audio")
	return mediaURL, nil
}

func (s *fileService) TestConnection(ctx context.Context) error {
	_, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	log.Err(err).Msg("S3 connection test")

	return err
}
