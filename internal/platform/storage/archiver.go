// Package storage archives backups to Google Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

const jsonContentType = "application/json"

type objectWriter interface {
	WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error
}

type objectCopier interface {
	CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error
}

// Archiver writes backup documents to <prefix>/backup-<id>.json and refreshes <prefix>/latest.json.
type Archiver struct {
	bucket string
	prefix string
	writer objectWriter
	copier objectCopier
}

// NewArchiver builds an archiver on top of a Cloud Storage client.
func NewArchiver(client *gcs.Client, bucket, prefix string) (*Archiver, error) {
	if client == nil {
		return nil, errors.New("storage archiver: client is required")
	}
	copier, err := NewCopier(client)
	if err != nil {
		return nil, err
	}
	return newArchiver(gcsWriter{client: client}, copier, bucket, prefix)
}

func newArchiver(writer objectWriter, copier objectCopier, bucket, prefix string) (*Archiver, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage archiver: bucket is required")
	}
	if _, err := cleanPrefix(prefix); err != nil {
		return nil, err
	}
	return &Archiver{bucket: bucket, prefix: prefix, writer: writer, copier: copier}, nil
}

// Archive uploads data and returns its gs:// URI. A failure to refresh latest.json is reported
// after the dated object has already been written.
func (a *Archiver) Archive(ctx context.Context, backupID string, data []byte) (string, error) {
	object, err := BuildObjectPath(KindBackup, PathParams{Prefix: a.prefix, BackupID: backupID})
	if err != nil {
		return "", err
	}
	latest, err := BuildObjectPath(KindLatestBackup, PathParams{Prefix: a.prefix})
	if err != nil {
		return "", err
	}
	if err := a.writer.WriteObject(ctx, a.bucket, object, jsonContentType, data); err != nil {
		return "", fmt.Errorf("storage archiver: write %s: %w", object, err)
	}
	uri := fmt.Sprintf("gs://%s/%s", a.bucket, object)
	if a.copier != nil {
		if err := a.copier.CopyObject(ctx, a.bucket, object, a.bucket, latest); err != nil {
			return uri, fmt.Errorf("storage archiver: refresh %s: %w", latest, err)
		}
	}
	return uri, nil
}

type gcsWriter struct {
	client *gcs.Client
}

func (g gcsWriter) WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error {
	w := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
