package sessionstore

import (
	"context"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMemorySize = 10000

// MemoryStore keeps sessions in process. Records are stored serialized so callers never
// alias them. Sessions are lost on restart.
type MemoryStore struct {
	entries *lru.LRU[string, []byte]
}

// NewMemoryStore creates a store holding at most size sessions for maxAge each
func NewMemoryStore(cfg Config) *MemoryStore {
	size := cfg.MemorySize
	if size <= 0 {
		size = defaultMemorySize
	}
	return &MemoryStore{
		entries: lru.NewLRU[string, []byte](size, nil, maxAgeOrDefault(cfg.MaxAge)),
	}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*session.CredentialRecord, error) {
	data, ok := s.entries.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return unmarshalRecord(data)
}

func (s *MemoryStore) Save(ctx context.Context, id string, rec *session.CredentialRecord) error {
	data, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	s.entries.Add(id, data)
	return nil
}

func (s *MemoryStore) Destroy(ctx context.Context, id string) error {
	s.entries.Remove(id)
	return nil
}

// Len returns the number of live sessions
func (s *MemoryStore) Len() int {
	return s.entries.Len()
}
