// Package artifact persists pipeline outputs as versioned JSON documents.
// Every document is wrapped in an envelope naming its schema and version,
// and readers refuse envelopes that do not match what they expect.
package artifact

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// Backend stores raw documents. Write must replace the previous document
// atomically: a concurrent Read sees either the old or the new bytes.
type Backend interface {
	Write(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Envelope is the stored form of every artifact.
type Envelope struct {
	Schema    string          `json:"schema"`
	Version   int             `json:"version"`
	WrittenAt time.Time       `json:"written_at"`
	Payload   json.RawMessage `json:"payload"`
}

// WriteObserver is told about every Put.
type WriteObserver func(key string, size int, err error)

// Store reads and writes enveloped artifacts through a Backend.
type Store struct {
	backend  Backend
	logger   logging.Logger
	now      func() time.Time
	observer WriteObserver
}

type Option func(*Store)

// WithClock overrides the time recorded in envelopes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithWriteObserver(o WriteObserver) Option {
	return func(s *Store) { s.observer = o }
}

// NewStore returns a Store over backend.
func NewStore(backend Backend, log logging.Logger, opts ...Option) *Store {
	s := &Store{backend: backend, logger: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put wraps value in an envelope and replaces the artifact at key.
func (s *Store) Put(ctx context.Context, key, schema string, version int, value interface{}) error {
	if err := validateKey(key); err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode artifact payload").WithDetail(key)
	}
	data, err := json.Marshal(Envelope{Schema: schema, Version: version, WrittenAt: s.now().UTC(), Payload: payload})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode artifact").WithDetail(key)
	}

	err = s.backend.Write(ctx, key, data)
	if s.observer != nil {
		s.observer(key, len(data), err)
	}
	if err != nil {
		return err
	}
	s.logger.Debug("artifact written", logging.String("key", key), logging.Int("bytes", len(data)))
	return nil
}

// Get loads the artifact at key into out. It fails with
// ErrCodeArtifactNotFound when nothing is stored and with
// ErrCodeArtifactSchemaMismatch when the envelope names another schema or
// version.
func (s *Store) Get(ctx context.Context, key, schema string, version int, out interface{}) error {
	env, err := s.envelope(ctx, key)
	if err != nil {
		return err
	}
	if env.Schema != schema || env.Version != version {
		return errors.New(errors.ErrCodeArtifactSchemaMismatch, "artifact schema mismatch").
			WithDetail(key + ": want " + schema + "/v" + strconv.Itoa(version) +
				", found " + env.Schema + "/v" + strconv.Itoa(env.Version))
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode artifact payload").WithDetail(key)
	}
	return nil
}

// WrittenAt returns when the artifact at key was last written.
func (s *Store) WrittenAt(ctx context.Context, key string) (time.Time, error) {
	env, err := s.envelope(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	return env.WrittenAt, nil
}

// Exists reports whether an artifact is stored at key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	return s.backend.Exists(ctx, key)
}

func (s *Store) envelope(ctx context.Context, key string) (*Envelope, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := s.backend.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactSchemaMismatch, "artifact is not an envelope").WithDetail(key)
	}
	return &env, nil
}

// validateKey accepts slash-separated keys without empty or dot segments.
func validateKey(key string) error {
	if key == "" {
		return errors.New(errors.ErrCodeValidation, "artifact key is empty")
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return errors.New(errors.ErrCodeValidation, "invalid artifact key").WithDetail(key)
		}
	}
	return nil
}

func notFound(key string) *errors.AppError {
	return errors.New(errors.ErrCodeArtifactNotFound, "artifact not found").WithDetail(key)
}
