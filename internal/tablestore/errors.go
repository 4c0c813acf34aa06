package tablestore

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEntityExists is returned by inserts whose key is already taken.
	ErrEntityExists = errors.New("entity already exists")

	// ErrNotFound is returned when the addressed entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrPreconditionFailed is returned when an ETag does not match the stored version.
	ErrPreconditionFailed = errors.New("etag precondition failed")

	// ErrInvalidKey is returned for keys outside the store's key grammar.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidValue is returned for property values the store cannot hold.
	ErrInvalidValue = errors.New("invalid property value")

	// ErrInvalidBatch is returned for batches that span partitions, repeat a
	// row key, are empty, or exceed MaxBatchSize.
	ErrInvalidBatch = errors.New("invalid batch")
)

// BatchError reports which operation of a batch failed.
type BatchError struct {
	Index int
	Op    OperationType
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch operation %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// ValidateKey checks a partition or row key against the key grammar: no
// '/', '\\', '#', '?' or control characters, valid UTF-8, at most MaxKeySize bytes.
func ValidateKey(key string) error {
	if len(key) > MaxKeySize {
		return fmt.Errorf("%w: key exceeds %d bytes", ErrInvalidKey, MaxKeySize)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: key is not valid UTF-8", ErrInvalidKey)
	}
	if i := strings.IndexAny(key, `/\#?`); i >= 0 {
		return fmt.Errorf("%w: key contains %q", ErrInvalidKey, key[i])
	}
	for _, r := range key {
		if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			return fmt.Errorf("%w: key contains control character %U", ErrInvalidKey, r)
		}
	}
	return nil
}

// ValidateEntity checks keys and property values of e.
func ValidateEntity(e *Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", ErrInvalidValue)
	}
	if err := ValidateKey(e.PartitionKey); err != nil {
		return fmt.Errorf("partition key: %w", err)
	}
	if err := ValidateKey(e.RowKey); err != nil {
		return fmt.Errorf("row key: %w", err)
	}
	return ValidateProperties(e.Properties)
}

// ValidateOperation checks the entity carried by op. Deletes only need valid keys.
func ValidateOperation(op Operation) error {
	if op.Entity == nil {
		return fmt.Errorf("%w: nil entity", ErrInvalidValue)
	}
	if op.Type == OpDelete {
		if err := ValidateKey(op.Entity.PartitionKey); err != nil {
			return fmt.Errorf("partition key: %w", err)
		}
		if err := ValidateKey(op.Entity.RowKey); err != nil {
			return fmt.Errorf("row key: %w", err)
		}
		return nil
	}
	return ValidateEntity(op.Entity)
}

// ValidateBatch checks the structural rules of a batch.
func ValidateBatch(ops []Operation) error {
	if len(ops) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidBatch)
	}
	if len(ops) > MaxBatchSize {
		return fmt.Errorf("%w: %d operations exceed the limit of %d", ErrInvalidBatch, len(ops), MaxBatchSize)
	}
	pk := ops[0].Entity.PartitionKey
	seen := make(map[string]struct{}, len(ops))
	for i, op := range ops {
		if op.Entity == nil {
			return &BatchError{Index: i, Op: op.Type, Err: fmt.Errorf("%w: nil entity", ErrInvalidBatch)}
		}
		if op.Entity.PartitionKey != pk {
			return &BatchError{Index: i, Op: op.Type, Err: fmt.Errorf("%w: batch spans partitions", ErrInvalidBatch)}
		}
		if _, dup := seen[op.Entity.RowKey]; dup {
			return &BatchError{Index: i, Op: op.Type, Err: fmt.Errorf("%w: row key %q repeated", ErrInvalidBatch, op.Entity.RowKey)}
		}
		seen[op.Entity.RowKey] = struct{}{}
	}
	return nil
}

// IsConflict reports whether err is an insert collision.
func IsConflict(err error) bool { return errors.Is(err, ErrEntityExists) }

// IsNotFound reports whether err is a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
