// Package challenge stores pending single-use codes (MFA login, email
// verification, password reset) in Redis with a TTL. A user holds at
// most one pending challenge per kind; saving a new one replaces the
// previous.
package challenge

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const recordVersion1 = 1

// Kind discriminates the challenge flows.
type Kind string

const (
	KindMFALogin      Kind = "mfa"
	KindVerifyEmail   Kind = "verify"
	KindPasswordReset Kind = "reset"
)

var (
	ErrNotFound = errors.New("challenge not found")
	ErrExpired  = errors.New("challenge expired")
	ErrBackend  = errors.New("challenge backend unavailable")
)

// Record is a pending challenge for one user.
type Record struct {
	UserID    string
	Code      string
	ExpiresAt int64
}

// Store keeps challenge records in Redis, keyed (kind, user). The TTL
// on the key and the ExpiresAt inside the record enforce expiry; Redis
// eviction only ever shortens a challenge's life, never extends it.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a Store using prefix for key namespacing.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "atc"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(kind Kind, userID string) string {
	return s.prefix + ":" + string(kind) + ":" + userID
}

// Save stores record under (kind, record.UserID) with the given TTL,
// replacing any pending challenge of that kind.
func (s *Store) Save(ctx context.Context, kind Kind, record *Record, ttl time.Duration) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(kind, record.UserID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// Get returns the pending challenge for (kind, userID). A record past
// its embedded expiry is deleted and reported as ErrExpired.
func (s *Store) Get(ctx context.Context, kind Kind, userID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(kind, userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(kind, userID)).Result()
		return nil, ErrExpired
	}
	return record, nil
}

// Consume deletes the pending challenge and reports whether one
// existed. The deleted-bool is the single-use guard: two concurrent
// consumers see at most one true.
func (s *Store) Consume(ctx context.Context, kind Kind, userID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(kind, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return n > 0, nil
}

func encodeRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 || len(record.Code) > 65535 {
		return nil, errors.New("challenge field length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Code))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Code)

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersion1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &Record{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, err
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, err
	}
	record.UserID = string(user)

	var codeLen uint16
	if err := binary.Read(reader, binary.BigEndian, &codeLen); err != nil {
		return nil, err
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(reader, code); err != nil {
		return nil, err
	}
	record.Code = string(code)

	return record, nil
}
