package broker

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionShardCount = 32

type sessionShard struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// SessionStore is the process-wide handle -> session mapping. It is
// sharded so concurrent requests on unrelated sessions never contend on
// one lock; each lookup/insert/remove is a single critical section on the
// owning shard.
type SessionStore struct {
	shards [sessionShardCount]*sessionShard
}

func NewSessionStore() *SessionStore {
	store := &SessionStore{}
	for i := range store.shards {
		store.shards[i] = &sessionShard{sessions: make(map[string]Session)}
	}
	return store
}

func (s *SessionStore) shard(id string) *sessionShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%sessionShardCount]
}

func (s *SessionStore) Put(id string, session Session) {
	shard := s.shard(id)
	shard.mu.Lock()
	shard.sessions[id] = session
	shard.mu.Unlock()
}

func (s *SessionStore) Get(id string) (Session, bool) {
	shard := s.shard(id)
	shard.mu.RLock()
	session, ok := shard.sessions[id]
	shard.mu.RUnlock()
	return session, ok
}

func (s *SessionStore) Remove(id string) bool {
	shard := s.shard(id)
	shard.mu.Lock()
	_, ok := shard.sessions[id]
	delete(shard.sessions, id)
	shard.mu.Unlock()
	return ok
}

// RemoveByRemoteID drops every session bound to the given remote identity.
// Called on user deletion so a deleted user cannot keep acting through a
// live session.
func (s *SessionStore) RemoveByRemoteID(remoteID string) int {
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for id, session := range shard.sessions {
			if session.User.RemoteID == remoteID {
				delete(shard.sessions, id)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

func (s *SessionStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		total += len(shard.sessions)
		shard.mu.RUnlock()
	}
	return total
}

// HandleCodec turns store keys into the opaque signed handles clients hold.
// The handle is an HS256 JWT whose jti is the store key: tampered or
// expired handles fail verification before any store lookup happens.
type HandleCodec struct {
	secret []byte
	ttl    time.Duration
}

func NewHandleCodec(secret string, ttl time.Duration) *HandleCodec {
	return &HandleCodec{secret: []byte(secret), ttl: ttl}
}

func (c *HandleCodec) Encode(id string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

func (c *HandleCodec) Decode(handle string) (string, error) {
	token, err := jwt.ParseWithClaims(handle, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return "", fmt.Errorf("invalid session handle")
	}
	return claims.ID, nil
}
