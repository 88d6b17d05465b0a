package storage

import "context"

// Failing rejects every operation, like storage in a private window with a
// zero quota.
type Failing struct{}

func (Failing) Get(context.Context, string) (string, error) {
	return "", ErrUnavailable
}

func (Failing) Set(context.Context, string, string) error {
	return ErrUnavailable
}

func (Failing) Remove(context.Context, string) error {
	return ErrUnavailable
}
