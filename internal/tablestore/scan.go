package tablestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrStopScan can be returned by a ScanAll callback to end the scan early
// without an error.
var ErrStopScan = errors.New("stop scan")

// Cursor is the position a continuation token resumes after.
type Cursor struct {
	PartitionKey string `json:"pk"`
	RowKey       string `json:"rk"`
}

// Before reports whether c sorts strictly before (pk, rk).
func (c Cursor) Before(pk, rk string) bool {
	if c.PartitionKey != pk {
		return c.PartitionKey < pk
	}
	return c.RowKey < rk
}

// EncodeContinuation renders a cursor as an opaque token.
func EncodeContinuation(c Cursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeContinuation parses a token produced by EncodeContinuation.
func DecodeContinuation(token string) (Cursor, error) {
	var c Cursor
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c, fmt.Errorf("%w: malformed continuation token", ErrInvalidValue)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: malformed continuation token", ErrInvalidValue)
	}
	return c, nil
}

// ScanAll pages through every entity matching q, calling fn for each in
// order. Returning ErrStopScan from fn ends the scan cleanly.
func ScanAll(ctx context.Context, t Table, q Query, fn func(*Entity) error) error {
	token := ""
	for {
		seg, err := t.QuerySegment(ctx, q, token)
		if err != nil {
			return err
		}
		for _, e := range seg.Entities {
			if err := fn(e); err != nil {
				if errors.Is(err, ErrStopScan) {
					return nil
				}
				return err
			}
		}
		if seg.Continuation == "" {
			return nil
		}
		token = seg.Continuation
	}
}

// QueryAll collects every entity matching q.
func QueryAll(ctx context.Context, t Table, q Query) ([]*Entity, error) {
	var out []*Entity
	err := ScanAll(ctx, t, q, func(e *Entity) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
