package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type memoryObject struct {
	data        []byte
	etag        string
	contentType string
}

// MemoryStore is an in-process ObjectStore. It records mutations so callers
// can replay them as events.
type MemoryStore struct {
	mutex   sync.RWMutex
	buckets map[string]map[string]memoryObject

	// FailGet makes Get return an error for the listed keys.
	FailGet map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]map[string]memoryObject),
		FailGet: make(map[string]error),
	}
}

// Put stores data and returns the created event. The ETag is the hex MD5 of
// the content, as MinIO does for single-part uploads.
func (m *MemoryStore) Put(bucket, key, contentType string, data []byte) Event {
	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string]memoryObject)
	}
	m.buckets[bucket][key] = memoryObject{
		data:        append([]byte(nil), data...),
		etag:        etag,
		contentType: contentType,
	}

	return Event{
		Type:        EventCreated,
		Bucket:      bucket,
		Key:         key,
		ETag:        `"` + etag + `"`,
		ContentType: contentType,
		Size:        int64(len(data)),
	}
}

// Remove deletes the object and returns the removed event.
func (m *MemoryStore) Remove(bucket, key string) Event {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.buckets[bucket], key)
	return Event{Type: EventRemoved, Bucket: bucket, Key: key}
}

func (m *MemoryStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	objects, ok := m.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("bucket '%s' does not exist", bucket)
	}

	var infos []ObjectInfo
	for key, obj := range objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		infos = append(infos, ObjectInfo{
			Key:         key,
			Size:        int64(len(obj.data)),
			ETag:        obj.etag,
			ContentType: obj.contentType,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Key < infos[j].Key
	})
	return infos, nil
}

func (m *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if err, ok := m.FailGet[key]; ok {
		return nil, err
	}

	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *MemoryStore) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	return &ObjectInfo{
		Key:         key,
		Size:        int64(len(obj.data)),
		ETag:        obj.etag,
		ContentType: obj.contentType,
	}, nil
}

var _ ObjectStore = (*MemoryStore)(nil)
