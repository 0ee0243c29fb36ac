// Command snapshot schreibt alle Werke als gzip-komprimiertes NDJSON nach S3
// und löscht ältere Snapshots.
package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/models"
	"refcheck/storage"
)

const snapshotPrefix = "snapshots/"

type SnapshotConfig struct {
	KeepSnapshots int `envconfig:"KEEP_SNAPSHOTS" default:"4"`
	BatchSize     int `envconfig:"SNAPSHOT_BATCH_SIZE" default:"500"`
}

// Validate lehnt Werte ab, mit denen Export oder Rotation nicht laufen können.
func (c SnapshotConfig) Validate() error {
	if c.KeepSnapshots < 0 {
		return fmt.Errorf("KEEP_SNAPSHOTS must be >= 0, got %d", c.KeepSnapshots)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("SNAPSHOT_BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	}
	return nil
}

type objectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type workBatcher interface {
	EachWorkBatch(ctx context.Context, size int, fn func([]models.Work) error) error
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()
	logging.Info("Starte Snapshot-Prozess...")

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Fehler beim Laden der Konfiguration", zap.Error(err))
	}
	var scfg SnapshotConfig
	if err := envconfig.Process("", &scfg); err != nil {
		logging.Fatal("Fehler beim Laden der Snapshot-Konfiguration", zap.Error(err))
	}
	if err := scfg.Validate(); err != nil {
		logging.Fatal("Ungültige Snapshot-Konfiguration", zap.Error(err))
	}
	if !cfg.S3Enabled() {
		logging.Fatal("S3_BUCKET und S3_URL müssen für Snapshots gesetzt sein")
	}

	db, err := storage.Open(cfg, logging)
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("Fehler beim Erstellen des S3-Clients", zap.Error(err))
	}

	ctx := context.Background()
	var buf bytes.Buffer
	count, err := writeSnapshot(ctx, storage.NewRepository(db), scfg.BatchSize, &buf)
	if err != nil {
		logging.Fatal("Fehler beim Erstellen des Snapshots", zap.Error(err))
	}

	key := snapshotKey(time.Now())
	if _, err := s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(cfg.S3Bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	}); err != nil {
		logging.Fatal("Fehler beim Hochladen nach S3", zap.Error(err))
	}
	logging.Info("Snapshot hochgeladen", zap.String("key", key), zap.Int("works", count), zap.Int("bytes", buf.Len()))

	deleted, err := rotateSnapshots(ctx, s3Client, cfg.S3Bucket, scfg.KeepSnapshots, logging)
	if err != nil {
		logging.Fatal("Fehler bei der Rotation alter Snapshots", zap.Error(err))
	}
	logging.Info("Snapshot-Prozess erfolgreich abgeschlossen.", zap.Int("deleted", deleted))
}

func snapshotKey(now time.Time) string {
	return fmt.Sprintf("%sworks-%s.ndjson.gz", snapshotPrefix, now.UTC().Format("2006-01-02T15-04-05Z"))
}

// writeSnapshot schreibt jedes Werk als eine JSON-Zeile in einen gzip-Stream.
func writeSnapshot(ctx context.Context, works workBatcher, batchSize int, w io.Writer) (int, error) {
	if batchSize < 1 {
		batchSize = 500
	}
	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	count := 0
	err := works.EachWorkBatch(ctx, batchSize, func(batch []models.Work) error {
		for i := range batch {
			if err := enc.Encode(&batch[i]); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}
	return count, nil
}

// rotateSnapshots behält die keep neuesten Snapshots und löscht den Rest.
func rotateSnapshots(ctx context.Context, client objectStore, bucket string, keep int, logging *zap.Logger) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must be >= 0, got %d", keep)
	}
	var objects []types.Object
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(snapshotPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && strings.HasSuffix(*obj.Key, ".ndjson.gz") {
				objects = append(objects, obj)
			}
		}
	}

	if len(objects) <= keep {
		logging.Info("Keine Rotation nötig", zap.Int("snapshots", len(objects)), zap.Int("keep", keep))
		return 0, nil
	}

	sort.Slice(objects, func(i, j int) bool {
		return aws.ToTime(objects[i].LastModified).After(aws.ToTime(objects[j].LastModified))
	})

	deleted := 0
	for _, obj := range objects[keep:] {
		logging.Info("Lösche alten Snapshot", zap.String("key", aws.ToString(obj.Key)))
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    obj.Key,
		}); err != nil {
			logging.Warn("Fehler beim Löschen", zap.String("key", aws.ToString(obj.Key)), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted, nil
}
