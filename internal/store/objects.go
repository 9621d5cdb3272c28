// Package store – object cache
//
// Callback payloads ride inside inline-keyboard buttons, which the upstream
// transport caps at a small byte budget. Payloads that do not fit inline are
// parked here under a freshly minted opaque token; the token's "oc:" prefix
// distinguishes it from a literal inline payload. Entries are never evicted:
// they live for the persisted-store lifetime, an accepted tradeoff for a
// small deployment.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/scoredb/studentdb-bot/internal/domain"
)

// PutObject stores an arbitrary JSON-serializable payload and returns its
// token ("oc:" + UUID).
func (s *Store) PutObject(ctx context.Context, payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("object cache: encode: %w", err)
	}
	token := domain.OCPrefix + uuid.NewString()
	s.objMu.Lock()
	s.objects[token] = b
	s.objMu.Unlock()
	s.saveObject(ctx, token, b)
	return token, nil
}

// GetObject returns the payload stored under token, or false when the token
// resolves to nothing (expired snapshot, foreign token, or garbage).
func (s *Store) GetObject(token string) (json.RawMessage, bool) {
	s.objMu.RLock()
	defer s.objMu.RUnlock()
	v, ok := s.objects[token]
	return v, ok
}

// HasObject reports whether token resolves to a stored payload.
func (s *Store) HasObject(token string) bool {
	_, ok := s.GetObject(token)
	return ok
}

// ObjectLen returns the number of parked payloads. Used by tests.
func (s *Store) ObjectLen() int {
	s.objMu.RLock()
	defer s.objMu.RUnlock()
	return len(s.objects)
}
