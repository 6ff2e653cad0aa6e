package pipeline_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/jobs/inmemory"
)

func inmemoryStore(t *testing.T) *inmemory.Store {
	t.Helper()
	return inmemory.NewStore()
}

func newQueue(t *testing.T, store *inmemory.Store) *inmemory.Queue {
	t.Helper()
	q := inmemory.NewQueue(inmemory.Options{Workers: 1}, store, nil, zerolog.Nop())
	t.Cleanup(func() { _ = q.Close() })
	return q
}
