package redis

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodePipelineLocked, "lock is held by another run")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

// Locker is a mutual-exclusion lock shared between processes.
type Locker interface {
	// TryLock acquires the lock without waiting.
	TryLock(ctx context.Context) (bool, error)
	// Lock retries until the lock is acquired, retries run out or ctx ends.
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) (bool, error)
}

// LockOption configures a Mutex.
type LockOption func(*lockConfig)

func WithLockTTL(ttl time.Duration) LockOption {
	return func(c *lockConfig) { c.ttl = ttl }
}

func WithRetryDelay(delay time.Duration) LockOption {
	return func(c *lockConfig) { c.retryDelay = delay }
}

func WithRetryCount(count int) LockOption {
	return func(c *lockConfig) { c.retryCount = count }
}

// WithWatchdog keeps extending the lock every ttl/3 while it is held.
func WithWatchdog(enabled bool) LockOption {
	return func(c *lockConfig) { c.watchdog = enabled }
}

type lockConfig struct {
	ttl        time.Duration
	retryDelay time.Duration
	retryCount int
	watchdog   bool
}

// Mutex is a SET NX lock whose value identifies the owner; only the owner
// can release or extend it.
type Mutex struct {
	client *Client
	key    string
	value  string
	cfg    lockConfig
	logger logging.Logger

	watchdogCancel context.CancelFunc
	watchdogDone   chan struct{}
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// NewMutex returns an unlocked Mutex named name.
func NewMutex(client *Client, name string, log logging.Logger, opts ...LockOption) *Mutex {
	cfg := lockConfig{
		ttl:        30 * time.Second,
		retryDelay: 100 * time.Millisecond,
		retryCount: 30,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Mutex{
		client: client,
		key:    LockKey(name),
		value:  uuid.NewString(),
		cfg:    cfg,
		logger: log,
	}
}

// LockKey is the redis key holding the lock named name.
func LockKey(name string) string {
	return keyPrefix + "lock:mutex:" + name
}

func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	ok, err := m.client.Underlying().SetNX(ctx, m.key, m.value, m.cfg.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock")
	}
	if ok && m.cfg.watchdog {
		m.startWatchdog()
	}
	return ok, nil
}

func (m *Mutex) Lock(ctx context.Context) error {
	for i := 0; i < m.cfg.retryCount; i++ {
		ok, err := m.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.retryDelay):
		}
	}
	return ErrLockNotAcquired
}

func (m *Mutex) Unlock(ctx context.Context) error {
	m.stopWatchdog()
	n, err := unlockScript.Run(ctx, m.client.Underlying(), []string{m.key}, m.value).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (m *Mutex) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, m.client.Underlying(), []string{m.key}, m.value, ttl.Milliseconds()).Int64()
	if err != nil && !stderrors.Is(err, redis.Nil) {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to extend lock")
	}
	return n == 1, nil
}

func (m *Mutex) startWatchdog() {
	ctx, cancel := context.WithCancel(context.Background())
	m.watchdogCancel = cancel
	m.watchdogDone = make(chan struct{})
	go m.runWatchdog(ctx)
}

func (m *Mutex) stopWatchdog() {
	if m.watchdogCancel != nil {
		m.watchdogCancel()
		<-m.watchdogDone
		m.watchdogCancel = nil
	}
}

func (m *Mutex) runWatchdog(ctx context.Context) {
	defer close(m.watchdogDone)
	ticker := time.NewTicker(m.cfg.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := m.Extend(ctx, m.cfg.ttl)
			if err != nil {
				if ctx.Err() == nil {
					m.logger.Error("lock watchdog failed to extend", logging.String("key", m.key), logging.Err(err))
				}
				return
			}
			if !ok {
				m.logger.Warn("lock watchdog lost lock", logging.String("key", m.key))
				return
			}
		}
	}
}
