package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CardSessionStore keeps short-lived kiosk login sessions created by a
// card scan. Redis-backed so every backend replica behind the kiosk sees
// the same session.
type CardSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCardSessionStore(rdb *redis.Client, ttl time.Duration) *CardSessionStore {
	return &CardSessionStore{rdb: rdb, ttl: ttl}
}

type CardSession struct {
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	ReaderID  string `json:"reader,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func key(id string) string { return fmt.Sprintf("kiosk:sess:%s", id) }

func (s *CardSessionStore) Create(ctx context.Context, id string, cs CardSession) error {
	now := time.Now()
	cs.IssuedAt = now.Unix()
	cs.ExpiresAt = now.Add(s.ttl).Unix()
	b, _ := json.Marshal(cs)
	return s.rdb.Set(ctx, key(id), b, s.ttl).Err()
}

func (s *CardSessionStore) Get(ctx context.Context, id string) (*CardSession, error) {
	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var cs CardSession
	if err := json.Unmarshal(b, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

func (s *CardSessionStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, key(id)).Err()
}
