package storage

import (
	"context"
	"errors"
	"testing"
)

type memoryObjects struct {
	objects   map[string][]byte
	types     map[string]string
	copyErr   error
	writeErr  error
	copyCalls int
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryObjects) WriteObject(_ context.Context, bucket, object, contentType string, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	key := bucket + "/" + object
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return nil
}

func (m *memoryObjects) CopyObject(_ context.Context, sb, so, db, do string) error {
	m.copyCalls++
	if m.copyErr != nil {
		return m.copyErr
	}
	m.objects[db+"/"+do] = m.objects[sb+"/"+so]
	return nil
}

func TestArchiverWritesDatedObjectAndLatest(t *testing.T) {
	objects := newMemoryObjects()
	archiver, err := newArchiver(objects, objects, "shop-bucket", "backups")
	if err != nil {
		t.Fatalf("newArchiver: %v", err)
	}

	uri, err := archiver.Archive(context.Background(), "01JABC", []byte(`{"products":[]}`))
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if uri != "gs://shop-bucket/backups/backup-01JABC.json" {
		t.Fatalf("unexpected uri %q", uri)
	}
	if string(objects.objects["shop-bucket/backups/latest.json"]) != `{"products":[]}` {
		t.Fatalf("expected latest.json to mirror the backup, got %#v", objects.objects)
	}
	if objects.types["shop-bucket/backups/backup-01JABC.json"] != "application/json" {
		t.Fatalf("expected json content type, got %q", objects.types["shop-bucket/backups/backup-01JABC.json"])
	}
}

func TestArchiverReportsFailures(t *testing.T) {
	objects := newMemoryObjects()
	objects.writeErr = errors.New("boom")
	archiver, _ := newArchiver(objects, objects, "b", "")
	if _, err := archiver.Archive(context.Background(), "x", []byte("{}")); !errors.Is(err, objects.writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
	if objects.copyCalls != 0 {
		t.Fatal("expected no copy after failed write")
	}

	objects = newMemoryObjects()
	objects.copyErr = errors.New("copy failed")
	archiver, _ = newArchiver(objects, objects, "b", "")
	uri, err := archiver.Archive(context.Background(), "x", []byte("{}"))
	if !errors.Is(err, objects.copyErr) || uri != "gs://b/backup-x.json" {
		t.Fatalf("expected uri with copy error, got %q %v", uri, err)
	}
}

func TestNewArchiverValidates(t *testing.T) {
	if _, err := newArchiver(newMemoryObjects(), nil, " ", "p"); err == nil {
		t.Fatal("expected bucket to be required")
	}
	if _, err := newArchiver(newMemoryObjects(), nil, "b", "../x"); err == nil {
		t.Fatal("expected traversal prefix to be rejected")
	}
	if _, err := NewArchiver(nil, "b", ""); err == nil {
		t.Fatal("expected client to be required")
	}
}
