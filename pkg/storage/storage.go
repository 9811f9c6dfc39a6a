// Package storage describes the object store the catalog is built from.
package storage

import (
	"context"
	"errors"
	"strings"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo is the listing/stat view of one object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ETag        string
	ContentType string
}

// ObjectStore is the read-only view of a bucket store used by the reconciler.
type ObjectStore interface {
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}

// Listener streams object notifications for a bucket. Both channels are
// closed when the stream ends.
type Listener interface {
	Listen(ctx context.Context, bucket, prefix string) (<-chan Event, <-chan error)
}

type EventType string

const (
	EventCreated EventType = "created"
	EventRemoved EventType = "removed"
)

// Event is a single object notification.
type Event struct {
	Type        EventType
	Bucket      string
	Key         string
	ETag        string
	ContentType string
	Size        int64
}

// NormalizeETag strips the quotes S3 compatible stores put around ETags.
func NormalizeETag(etag string) string {
	return strings.Trim(strings.TrimSpace(etag), `"`)
}

// EventTypeFromName maps an S3 event name such as "s3:ObjectCreated:Put".
func EventTypeFromName(name string) (EventType, bool) {
	switch {
	case strings.HasPrefix(name, "s3:ObjectCreated"):
		return EventCreated, true
	case strings.HasPrefix(name, "s3:ObjectRemoved"):
		return EventRemoved, true
	}
	return "", false
}
