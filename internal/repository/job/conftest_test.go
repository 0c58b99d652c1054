package job

import (
	"context"
	"strings"

	"github.com/kailas-cloud/semdex/internal/db"
)

// fakeStore is an in-memory store implementing the consumer interface.
// Error injection via the *Err fields.
type fakeStore struct {
	kv     map[string][]byte
	hashes map[string]map[string]string

	setNXErr error
	hsetErr  error
	delErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kv:     make(map[string][]byte),
		hashes: make(map[string]map[string]string),
	}
}

func (f *fakeStore) SetNX(_ context.Context, key string, value []byte) error {
	if f.setNXErr != nil {
		return f.setNXErr
	}
	if _, ok := f.kv[key]; ok {
		return db.ErrKeyExists
	}
	f.kv[key] = value
	return nil
}

func (f *fakeStore) Del(_ context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.kv, key)
	delete(f.hashes, key)
	return nil
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if f.hsetErr != nil {
		return f.hsetErr
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	h := f.hashes[key]
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) Scan(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	for k := range f.kv {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
