package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuizKey returns the cache key for a quiz's full content, answer key included.
func (r *CacheKeyStruct) QuizKey(quizID string) string {
	return fmt.Sprintf("quiz:%s", quizID)
}

// SessionChannel returns the Redis PubSub channel carrying a session's realtime events.
func (r *CacheKeyStruct) SessionChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

// RateLimitKey returns the counter key for a caller within a fixed window.
func (r *CacheKeyStruct) RateLimitKey(scope, subject string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, subject, window)
}

// RevokedTokenKey marks a signed-out token's JTI until the token expires.
func (r *CacheKeyStruct) RevokedTokenKey(jti string) string {
	return fmt.Sprintf("auth:revoked:%s", jti)
}

// DeadlineLockKey returns the lock key that keeps one deadline sweep running across replicas.
func (r *CacheKeyStruct) DeadlineLockKey() string {
	return "worker:deadline:lock"
}

var CacheKey = NewCacheKeyStruct()
