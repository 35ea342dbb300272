package storage

import (
	"context"
	"errors"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Copier provides object copy operations between Cloud Storage locations.
type Copier struct {
	client *gcs.Client
}

// NewCopier constructs a Copier backed by the provided Cloud Storage client.
func NewCopier(client *gcs.Client) (*Copier, error) {
	if client == nil {
		return nil, errors.New("storage copier: client is required")
	}
	return &Copier{client: client}, nil
}

// CopyObject copies an object within or across buckets. Copying an object onto itself is a no-op.
func (c *Copier) CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error {
	if c == nil || c.client == nil {
		return errors.New("storage copier: client is not initialised")
	}
	srcBucket, srcObject := strings.TrimSpace(sourceBucket), strings.TrimSpace(sourceObject)
	dstBucket, dstObject := strings.TrimSpace(destBucket), strings.TrimSpace(destObject)
	if srcBucket == "" || srcObject == "" || dstBucket == "" || dstObject == "" {
		return errors.New("storage copier: source and destination must be provided")
	}
	if srcBucket == dstBucket && srcObject == dstObject {
		return nil
	}

	dst := c.client.Bucket(dstBucket).Object(dstObject)
	copier := dst.CopierFrom(c.client.Bucket(srcBucket).Object(srcObject))
	copier.ContentType = jsonContentType
	_, err := copier.Run(ctx)
	return err
}
