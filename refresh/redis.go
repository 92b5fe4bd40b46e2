package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix  = "art:"
	subjectKeyPrefix = "aru:"
)

const saveRecordScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1],
  "subject", ARGV[2],
  "revoked", "0",
  "expires_at", ARGV[3],
  "created_at", ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
redis.call("SADD", KEYS[2], ARGV[6])
return 1
`

var saveRecordLua = redis.NewScript(saveRecordScript)

const revokeRecordScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`

var revokeRecordLua = redis.NewScript(revokeRecordScript)

// RedisStore is a [Store] backed by Redis. Record lifetime is enforced by key
// TTL; the revoked flag is flipped with a Lua compare-and-swap so that the
// single-use rotation decision is made inside Redis, atomically, even across
// multiple service instances.
type RedisStore struct {
	redis redis.UniversalClient
	now   func() time.Time
}

// NewRedisStore creates a [RedisStore]. now defaults to time.Now and is only
// used to compute the key TTL at save time; expiry checks themselves are
// Redis's.
func NewRedisStore(client redis.UniversalClient, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{redis: client, now: now}
}

func recordKey(hash string) string {
	return recordKeyPrefix + hash
}

func subjectKey(subjectID string) string {
	return subjectKeyPrefix + subjectID
}

// Save persists rec with a TTL equal to its remaining lifetime and indexes it
// under its subject.
func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("record already expired at save time")
	}

	res, err := saveRecordLua.Run(
		ctx,
		s.redis,
		[]string{recordKey(rec.TokenHash), subjectKey(rec.SubjectID)},
		rec.ID,
		rec.SubjectID,
		rec.ExpiresAt.Unix(),
		rec.CreatedAt.Unix(),
		ttl.Milliseconds(),
		rec.TokenHash,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res == 0 {
		return ErrDuplicateHash
	}

	return nil
}

// FindByHash loads the record for hash. Absent or expired keys return
// (nil, nil).
func (s *RedisStore) FindByHash(ctx context.Context, hash string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, recordKey(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec, err := decodeRecord(hash, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

// Revoke flips the revoked flag via Lua CAS. Returns whether this call
// performed the revocation.
func (s *RedisStore) Revoke(ctx context.Context, hash string) (bool, error) {
	res, err := revokeRecordLua.Run(ctx, s.redis, []string{recordKey(hash)}).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res == 1, nil
}

// RevokeAllForSubject revokes every indexed record for subjectID and prunes
// index entries whose records have already expired.
func (s *RedisStore) RevokeAllForSubject(ctx context.Context, subjectID string) (int, error) {
	hashes, err := s.redis.SMembers(ctx, subjectKey(subjectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	revoked := 0
	var stale []interface{}
	for _, hash := range hashes {
		res, err := revokeRecordLua.Run(ctx, s.redis, []string{recordKey(hash)}).Int64()
		if err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		switch res {
		case 1:
			revoked++
		case -1:
			stale = append(stale, hash)
		}
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, subjectKey(subjectID), stale...).Err(); err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return revoked, nil
}

// DeleteAllForSubject removes every record for subjectID along with its index.
func (s *RedisStore) DeleteAllForSubject(ctx context.Context, subjectID string) error {
	hashes, err := s.redis.SMembers(ctx, subjectKey(subjectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, hash := range hashes {
		keys = append(keys, recordKey(hash))
	}
	keys = append(keys, subjectKey(subjectID))

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time availability check.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func decodeRecord(hash string, fields map[string]string) (*Record, error) {
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt expires_at field: %v", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt created_at field: %v", err)
	}

	return &Record{
		ID:        fields["id"],
		SubjectID: fields["subject"],
		TokenHash: hash,
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
		Revoked:   fields["revoked"] == "1",
		CreatedAt: time.Unix(createdAt, 0).UTC(),
	}, nil
}
