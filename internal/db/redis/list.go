package redis

import (
	"context"

	"github.com/kailas-cloud/semdex/internal/db"
)

// RPush appends values to a list.
func (s *Store) RPush(ctx context.Context, key string, values ...[]byte) error {
	if len(values) == 0 {
		return nil
	}
	elems := make([]string, len(values))
	for i, v := range values {
		elems[i] = string(v)
	}
	cmd := s.b().Rpush().Key(key).Element(elems...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpRPush, Err: err}
	}
	return nil
}

// LRange returns list elements between start and stop (inclusive, negative
// indexes count from the tail).
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	cmd := s.b().Lrange().Key(key).Start(start).Stop(stop).Build()
	items, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpLRange, Err: err}
	}
	out := make([][]byte, len(items))
	for i, it := range items {
		out[i] = []byte(it)
	}
	return out, nil
}

// LTrim keeps only list elements between start and stop.
func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	cmd := s.b().Ltrim().Key(key).Start(start).Stop(stop).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpLTrim, Err: err}
	}
	return nil
}
