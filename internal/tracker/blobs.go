package tracker

import "sync"

// Blob is an original image held for the lifetime of the session.
type Blob struct {
	ContentType string
	Data        []byte
}

// blobStore keeps originals in memory, keyed by job id. They are never persisted.
type blobStore struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

func newBlobStore() *blobStore {
	return &blobStore{blobs: make(map[string]Blob)}
}

func blobRef(jobID string) string {
	return "blob:" + jobID
}

func (s *blobStore) put(jobID string, b Blob) string {
	s.mu.Lock()
	s.blobs[jobID] = b
	s.mu.Unlock()
	return blobRef(jobID)
}

func (s *blobStore) get(jobID string) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[jobID]
	return b, ok
}

func (s *blobStore) delete(jobID string) {
	s.mu.Lock()
	delete(s.blobs, jobID)
	s.mu.Unlock()
}

func (s *blobStore) clear() {
	s.mu.Lock()
	s.blobs = make(map[string]Blob)
	s.mu.Unlock()
}
