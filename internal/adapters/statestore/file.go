package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultLockTimeout = 5 * time.Second
	lockPollInterval   = 10 * time.Millisecond
	staleLockAge       = 2 * time.Minute
)

type envelope struct {
	Version int64           `json:"version"`
	Doc     json.RawMessage `json:"doc"`
}

// File stores each key as a JSON envelope in dir. Saves are serialized with
// an O_EXCL lock file and land through an atomic rename, so independent
// processes sharing dir see consistent versions.
type File struct {
	dir         string
	lockTimeout time.Duration
}

// FileOption configures a File store.
type FileOption func(*File)

// WithLockTimeout bounds how long Save waits for the key lock.
func WithLockTimeout(d time.Duration) FileOption {
	return func(f *File) {
		if d > 0 {
			f.lockTimeout = d
		}
	}
}

// NewFile creates dir if needed and returns a File store over it.
func NewFile(dir string, opts ...FileOption) (*File, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	f := &File{dir: dir, lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *File) path(key string) string { return filepath.Join(f.dir, key+".json") }

// Load implements Store.
func (f *File) Load(_ context.Context, key string) ([]byte, int64, error) {
	if err := validateKey(key); err != nil {
		return nil, 0, err
	}
	env, err := f.read(key)
	if err != nil {
		return nil, 0, err
	}
	return env.Doc, env.Version, nil
}

func (f *File) read(key string) (envelope, error) {
	raw, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return envelope{}, nil
	}
	if err != nil {
		return envelope{}, fmt.Errorf("read %s: %w", key, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope %s: %w", key, err)
	}
	return env, nil
}

// Save implements Store.
func (f *File) Save(ctx context.Context, key string, doc []byte, expected int64) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	unlock, err := f.lock(ctx, key)
	if err != nil {
		return false, err
	}
	defer unlock()

	cur, err := f.read(key)
	if err != nil {
		return false, err
	}
	if cur.Version != expected {
		return false, nil
	}

	raw, err := json.Marshal(envelope{Version: expected + 1, Doc: doc})
	if err != nil {
		return false, fmt.Errorf("encode envelope %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(f.dir, "."+key+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		return false, fmt.Errorf("rename %s: %w", key, err)
	}
	return true, nil
}

// lock takes the per-key lock file, breaking locks older than staleLockAge.
func (f *File) lock(ctx context.Context, key string) (func(), error) {
	lockPath := filepath.Join(f.dir, "."+key+".lock")
	deadline := time.Now().Add(f.lockTimeout)
	for {
		lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = lf.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}
