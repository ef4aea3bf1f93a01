// Package kvstore stores versioned JSON documents. Every value is wrapped in
// an envelope carrying its schema version and a revision that is bumped on
// every write, so that concurrent writers cannot overwrite each other.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

var ErrNotFound = fmt.Errorf("key not found")
var ErrRevisionConflict = fmt.Errorf("revision conflict")
var ErrSchemaMismatch = fmt.Errorf("schema mismatch")

type Meta struct {
	Schema    int       `json:"schema"`
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type envelope struct {
	Meta
	Data json.RawMessage `json:"data"`
}

//go:generate moq -rm -out kvstore_mock.go . Store

type Store interface {
	// Get decodes the value stored under key into v. A value written with
	// another schema version is not decoded and ErrSchemaMismatch is returned
	// together with its meta data.
	Get(ctx context.Context, key string, v any) (Meta, error)
	// Put stores v if the current revision of key equals expectedRevision.
	// Use revision 0 for keys that do not exist yet.
	Put(ctx context.Context, key string, v any, expectedRevision uint64) (Meta, error)
	Delete(ctx context.Context, key string) error
}

func seal(schema int, current uint64, v any) ([]byte, Meta, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, Meta{}, err
	}

	env := envelope{
		Meta: Meta{
			Schema:    schema,
			Revision:  current + 1,
			UpdatedAt: time.Now().UTC(),
		},
		Data: data,
	}

	b, err := json.Marshal(env)
	return b, env.Meta, err
}

func open(schema int, b []byte, v any) (Meta, error) {
	env := envelope{}
	if err := json.Unmarshal(b, &env); err != nil {
		return Meta{}, fmt.Errorf("%w: %s", ErrSchemaMismatch, err.Error())
	}

	if env.Schema != schema {
		return env.Meta, fmt.Errorf("%w: stored schema %d, expected %d", ErrSchemaMismatch, env.Schema, schema)
	}

	if v != nil {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return env.Meta, fmt.Errorf("%w: %s", ErrSchemaMismatch, err.Error())
		}
	}

	return env.Meta, nil
}

func revisionOf(b []byte) uint64 {
	env := envelope{}
	if err := json.Unmarshal(b, &env); err != nil {
		return 0
	}
	return env.Revision
}
