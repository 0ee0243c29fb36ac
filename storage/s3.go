package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"refcheck/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter ist der Teil des S3-Clients, den der PDFStore braucht.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client erstellt einen S3-Client für einen S3-kompatiblen Endpunkt.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3URL,
				SigningRegion:     cfg.S3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// PDFStore legt hochgeladene PDFs im Bucket ab.
type PDFStore struct {
	Client   ObjectPutter
	Bucket   string
	Endpoint string
}

// NewPDFStore erstellt einen PDFStore oder nil, wenn S3 nicht konfiguriert ist.
func NewPDFStore(cfg *config.Config) (*PDFStore, error) {
	if !cfg.S3Enabled() {
		return nil, nil
	}
	client, err := NewS3Client(cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &PDFStore{Client: client, Bucket: cfg.S3Bucket, Endpoint: cfg.S3URL}, nil
}

// Upload lädt die PDF-Datei unter works/<id>.pdf hoch und gibt den Link zurück.
func (s *PDFStore) Upload(ctx context.Context, workID string, data []byte) (string, error) {
	key := fmt.Sprintf("works/%s.pdf", workID)
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.Endpoint, "/"), s.Bucket, key), nil
}
