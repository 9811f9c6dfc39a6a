package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/notification"
)

// MinioConfig holds the connection settings of one MinIO endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
}

// MinioStore implements ObjectStore on top of minio-go.
type MinioStore struct {
	client *minio.Client
}

func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for '%s': %w", cfg.Endpoint, err)
	}

	return &MinioStore{client: client}, nil
}

func (s *MinioStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo

	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s/%s: %w", bucket, prefix, obj.Err)
		}
		infos = append(infos, ObjectInfo{
			Key:         obj.Key,
			Size:        obj.Size,
			ETag:        NormalizeETag(obj.ETag),
			ContentType: obj.ContentType,
		})
	}

	return infos, nil
}

func (s *MinioStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate(bucket, key, err)
	}
	return data, nil
}

func (s *MinioStore) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, translate(bucket, key, err)
	}

	return &ObjectInfo{
		Key:         info.Key,
		Size:        info.Size,
		ETag:        NormalizeETag(info.ETag),
		ContentType: info.ContentType,
	}, nil
}

func translate(bucket, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	return fmt.Errorf("failed to access %s/%s: %w", bucket, key, err)
}

// Listen streams bucket notifications as events until ctx is cancelled.
// The returned error channel receives listener failures; both channels are
// closed when listening stops.
func (s *MinioStore) Listen(ctx context.Context, bucket, prefix string) (<-chan Event, <-chan error) {
	events := make(chan Event)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		infos := s.client.ListenBucketNotification(ctx, bucket, prefix, "", []string{
			"s3:ObjectCreated:*",
			"s3:ObjectRemoved:*",
		})

		for info := range infos {
			if info.Err != nil {
				if errors.Is(info.Err, context.Canceled) {
					return
				}
				select {
				case errs <- info.Err:
				default:
				}
				continue
			}

			for _, record := range info.Records {
				event, ok := fromNotification(record)
				if !ok {
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, errs
}

func fromNotification(record notification.Event) (Event, bool) {
	eventType, ok := EventTypeFromName(record.EventName)
	if !ok {
		return Event{}, false
	}

	// Keys are URL encoded in notifications
	key, err := url.QueryUnescape(record.S3.Object.Key)
	if err != nil {
		key = record.S3.Object.Key
	}

	return Event{
		Type:        eventType,
		Bucket:      record.S3.Bucket.Name,
		Key:         key,
		ETag:        NormalizeETag(record.S3.Object.ETag),
		ContentType: record.S3.Object.ContentType,
		Size:        record.S3.Object.Size,
	}, true
}

var (
	_ ObjectStore = (*MinioStore)(nil)
	_ Listener    = (*MinioStore)(nil)
)
