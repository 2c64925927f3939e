// Package statestore provides versioned JSON document storage with
// optimistic concurrency.
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/workloop/pkg/metrics"
)

// DefaultRetries bounds UpdateJSON attempts.
const DefaultRetries = 3

// Store is a versioned document store. A missing key loads as (nil, 0).
// Save succeeds only when the stored version still equals expected; the
// new version is expected+1. A false result with a nil error is a conflict.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, int64, error)
	Save(ctx context.Context, key string, doc []byte, expected int64) (bool, error)
}

// UpdateJSON loads key into a T, applies fn and saves the result, reloading
// and reapplying fn on conflict up to retries times. If fn returns an error
// nothing is saved and the error is returned as is.
func UpdateJSON[T any](ctx context.Context, s Store, key string, retries int, fn func(doc *T) error) (T, error) {
	var zero T
	if retries <= 0 {
		retries = DefaultRetries
	}

	for attempt := 1; attempt <= retries; attempt++ {
		doc, version, err := LoadJSON[T](ctx, s, key)
		if err != nil {
			return zero, err
		}
		if err := fn(&doc); err != nil {
			return zero, err
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return zero, fmt.Errorf("encode %s: %w", key, err)
		}
		ok, err := s.Save(ctx, key, raw, version)
		if err != nil {
			return zero, fmt.Errorf("save %s: %w", key, err)
		}
		if ok {
			return doc, nil
		}

		metrics.RecordStateConflict()
		if attempt < retries {
			metrics.RecordStateRetry()
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
	}

	metrics.RecordStateExhausted()
	return zero, fmt.Errorf("%w: %s after %d attempts", ErrConflictExhausted, key, retries)
}

// LoadJSON loads key into a T. A missing key yields the zero T and version 0.
func LoadJSON[T any](ctx context.Context, s Store, key string) (T, int64, error) {
	var doc T
	raw, version, err := s.Load(ctx, key)
	if err != nil {
		return doc, 0, fmt.Errorf("load %s: %w", key, err)
	}
	if len(raw) == 0 {
		return doc, version, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc, version, nil
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
