package valkey

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/resmatch/internal/db"
)

// XAdd appends an entry with an auto-generated id and returns that id.
func (s *Store) XAdd(ctx context.Context, stream string, fields map[string]string) (string, error) {
	cmd := s.b().Xadd().Key(stream).Id("*").FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	id, err := s.do(ctx, cmd.Build()).ToString()
	if err != nil {
		return "", &db.Error{Op: db.OpXAdd, Err: err}
	}
	return id, nil
}

// XRange reads up to count entries with ids strictly greater than after.
func (s *Store) XRange(ctx context.Context, stream, after string, count int64) ([]db.StreamEntry, error) {
	start := "-"
	if after != "" {
		start = "(" + after
	}
	cmd := s.b().Arbitrary("XRANGE").Keys(stream).
		Args(start, "+", "COUNT", strconv.FormatInt(count, 10)).Build()
	entries, err := s.do(ctx, cmd).AsXRange()
	if err != nil {
		return nil, &db.Error{Op: db.OpXRange, Err: err}
	}

	out := make([]db.StreamEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, db.StreamEntry{ID: e.ID, Fields: e.FieldValues})
	}
	return out, nil
}
