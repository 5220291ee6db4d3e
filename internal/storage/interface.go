package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Retrieve when no blob has the given name
var ErrNotFound = errors.New("blob not found")

// Archive defines the contract for durable blob storage of escalation records
type Archive interface {
	Store(ctx context.Context, name string, data []byte) error
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
