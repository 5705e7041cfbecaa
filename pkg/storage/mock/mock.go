// Package mock provides an in-memory storage.Store for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/scribe/pkg/storage"
)

// DownloadCall records a single invocation of Download.
type DownloadCall struct {
	Bucket string
	Key    string
}

// Store is an in-memory storage.Store keyed by "bucket/key".
type Store struct {
	mu sync.Mutex

	// Objects maps "bucket/key" to contents.
	Objects map[string][]byte

	// DownloadErr, if non-nil, is returned by every Download call.
	DownloadErr error

	// DownloadCalls records every call in order.
	DownloadCalls []DownloadCall
}

// Put stores data under bucket/key. Thread-safe.
func (s *Store) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Objects == nil {
		s.Objects = make(map[string][]byte)
	}
	s.Objects[bucket+"/"+key] = data
}

// Download implements storage.Store.
func (s *Store) Download(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DownloadCalls = append(s.DownloadCalls, DownloadCall{Bucket: bucket, Key: key})
	if s.DownloadErr != nil {
		return nil, s.DownloadErr
	}
	data, ok := s.Objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (s *Store) Calls() []DownloadCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DownloadCall, len(s.DownloadCalls))
	copy(out, s.DownloadCalls)
	return out
}

var _ storage.Store = (*Store)(nil)
