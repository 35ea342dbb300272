package storage

import (
	"fmt"
	"path"
	"strings"
)

// ObjectKind names a family of objects the service writes to Cloud Storage.
type ObjectKind string

const (
	KindBackup       ObjectKind = "backup"
	KindLatestBackup ObjectKind = "latest-backup"
)

// PathParams carries the identifiers used to compose object keys.
type PathParams struct {
	Prefix   string
	BackupID string
}

// BuildObjectPath resolves the object key for the given kind.
func BuildObjectPath(kind ObjectKind, params PathParams) (string, error) {
	prefix, err := cleanPrefix(params.Prefix)
	if err != nil {
		return "", err
	}
	switch kind {
	case KindBackup:
		backupID, err := validateSegment("backupID", params.BackupID)
		if err != nil {
			return "", err
		}
		return joinKey(prefix, fmt.Sprintf("backup-%s.json", backupID)), nil
	case KindLatestBackup:
		return joinKey(prefix, "latest.json"), nil
	default:
		return "", fmt.Errorf("storage: unsupported object kind %q", kind)
	}
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// cleanPrefix accepts nested prefixes such as "backups/shop-1" but rejects traversal.
func cleanPrefix(value string) (string, error) {
	value = strings.Trim(strings.TrimSpace(value), "/")
	if value == "" {
		return "", nil
	}
	if strings.Contains(value, "\\") {
		return "", fmt.Errorf("storage: prefix contains invalid path characters")
	}
	for _, segment := range strings.Split(value, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("storage: prefix contains invalid segment %q", segment)
		}
	}
	return value, nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
