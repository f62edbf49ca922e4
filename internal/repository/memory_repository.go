package repository

import (
	"context"
	"sync"
)

// InMemoryCredentialRepository is a process-local credential store for
// tools and tests that must not touch the user's durable credentials.
type InMemoryCredentialRepository struct {
	mu   sync.Mutex
	data map[string]string
}

func NewInMemoryCredentialRepository() *InMemoryCredentialRepository {
	return &InMemoryCredentialRepository{data: make(map[string]string)}
}

func (r *InMemoryCredentialRepository) Get(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[key]
	if !ok {
		return "", ErrCredentialNotFound
	}
	return v, nil
}

func (r *InMemoryCredentialRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = value
	return nil
}

func (r *InMemoryCredentialRepository) Delete(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.data, k)
	}
	return nil
}
