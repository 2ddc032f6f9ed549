package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/school-treasury/pkg/logger"
	"github.com/nimasrn/school-treasury/pkg/redis"
)

var (
	ErrInProgress      = errors.New("a request with this idempotency key is still in progress")
	ErrKeyReused       = errors.New("idempotency key was already used for a different request")
	ErrLockAcquireFail = errors.New("failed to acquire idempotency lock")
)

type Config struct {
	// LockTTL bounds how long a crashed request can hold its key.
	LockTTL time.Duration

	// ResponseTTL is how long a completed response is replayed.
	ResponseTTL time.Duration

	LockKeyPrefix     string
	ResponseKeyPrefix string
}

func DefaultConfig() Config {
	return Config{
		LockTTL:           30 * time.Second,
		ResponseTTL:       24 * time.Hour,
		LockKeyPrefix:     "idem:lock:",
		ResponseKeyPrefix: "idem:resp:",
	}
}

// Response is what gets replayed for a repeated key.
type Response struct {
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Request is a held idempotency key. It must end with Complete or Release.
type Request struct {
	Key          string
	Fingerprint  string
	lockAcquired bool
}

type Service struct {
	redis  redis.RedisAdapter
	config Config
}

func NewService(adapter redis.RedisAdapter, config Config) *Service {
	def := DefaultConfig()
	if config.LockTTL <= 0 {
		config.LockTTL = def.LockTTL
	}
	if config.ResponseTTL <= 0 {
		config.ResponseTTL = def.ResponseTTL
	}
	if config.LockKeyPrefix == "" {
		config.LockKeyPrefix = def.LockKeyPrefix
	}
	if config.ResponseKeyPrefix == "" {
		config.ResponseKeyPrefix = def.ResponseKeyPrefix
	}
	return &Service{redis: adapter, config: config}
}

// Fingerprint identifies the request payload a key was first used with.
func Fingerprint(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Begin claims key for a new request. When the key already completed, the
// stored response is returned instead and no lock is taken. Redis failures
// are returned: a ledger write must not run without its key being held.
func (s *Service) Begin(ctx context.Context, key, fingerprint string) (*Request, *Response, error) {
	cached, err := s.lookup(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if cached != nil {
		if cached.Fingerprint != fingerprint {
			return nil, nil, ErrKeyReused
		}
		logger.Info("replaying idempotent response", "idempotency_key", key, "status", cached.Status)
		return nil, cached, nil
	}

	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
	acquired, err := s.redis.SetNX(ctx, s.config.LockKeyPrefix+key, lockValue, s.config.LockTTL)
	if err != nil {
		logger.Error("failed to acquire idempotency lock", "idempotency_key", key, "error", err)
		return nil, nil, fmt.Errorf("%w: %v", ErrLockAcquireFail, err)
	}
	if !acquired {
		// the holder may have completed between lookup and SetNX
		if cached, err = s.lookup(ctx, key); err == nil && cached != nil {
			if cached.Fingerprint != fingerprint {
				return nil, nil, ErrKeyReused
			}
			return nil, cached, nil
		}
		return nil, nil, ErrInProgress
	}

	logger.Debug("idempotency lock acquired", "idempotency_key", key, "lock_ttl", s.config.LockTTL)
	return &Request{Key: key, Fingerprint: fingerprint, lockAcquired: true}, nil, nil
}

// Complete stores the response for replay and releases the lock.
func (s *Service) Complete(ctx context.Context, req *Request, status int, body []byte) error {
	if req == nil {
		return nil
	}
	data, err := json.Marshal(Response{Status: status, Body: body, Fingerprint: req.Fingerprint})
	if err != nil {
		return fmt.Errorf("failed to encode idempotent response: %w", err)
	}
	if err := s.redis.Set(ctx, s.config.ResponseKeyPrefix+req.Key, data, s.config.ResponseTTL); err != nil {
		logger.Error("failed to store idempotent response", "idempotency_key", req.Key, "error", err)
		_ = s.Release(ctx, req)
		return fmt.Errorf("failed to store idempotent response: %w", err)
	}
	return s.Release(ctx, req)
}

// Release drops the lock without storing a response so the key can be retried.
func (s *Service) Release(ctx context.Context, req *Request) error {
	if req == nil || !req.lockAcquired {
		return nil
	}
	if err := s.redis.Del(ctx, s.config.LockKeyPrefix+req.Key); err != nil {
		logger.Warn("failed to release idempotency lock", "idempotency_key", req.Key, "error", err)
		return err
	}
	req.lockAcquired = false
	return nil
}

func (s *Service) lookup(ctx context.Context, key string) (*Response, error) {
	data, err := s.redis.Get(ctx, s.config.ResponseKeyPrefix+key)
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		logger.Error("failed to read idempotent response", "idempotency_key", key, "error", err)
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("corrupt idempotent response for %s: %w", key, err)
	}
	return &resp, nil
}
