package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	fail bool
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (m *memStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("read-only database")
	}
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestEnsure_GeneratesOnce(t *testing.T) {
	c := New(nil, nil)
	require.Equal(t, "", c.Current())

	id := c.Ensure()
	require.Len(t, id, 26)
	require.Equal(t, id, c.Ensure())
	require.Equal(t, id, c.Current())
}

func TestEnsure_NotifiesOnCreate(t *testing.T) {
	c := New(nil, nil)
	var got []string
	c.Subscribe(func(id string) { got = append(got, id) })

	id := c.Ensure()
	c.Ensure()
	require.Equal(t, []string{id}, got)
}

func TestAdopt_NotifiesInOrder(t *testing.T) {
	c := New(nil, nil)
	var order []string
	c.Subscribe(func(id string) { order = append(order, "first:"+id) })
	c.Subscribe(func(id string) { order = append(order, "second:"+id) })

	c.Adopt("server-id")
	require.Equal(t, []string{"first:server-id", "second:server-id"}, order)
	require.Equal(t, "server-id", c.Current())

	// Same id again is not a change.
	c.Adopt("server-id")
	require.Len(t, order, 2)
}

func TestAdopt_ListenerMayReadCoordinator(t *testing.T) {
	c := New(nil, nil)
	var seen string
	c.Subscribe(func(string) { seen = c.Current() })

	c.Adopt("abc")
	require.Equal(t, "abc", seen)
}

func TestPersistence(t *testing.T) {
	store := newMemStore()
	c := New(store, nil)
	c.Adopt("persisted")
	c.MarkVerified(true)

	restored := New(store, nil)
	require.Equal(t, "persisted", restored.Current())
	require.True(t, restored.Verified())
}

func TestPersistFailureIsSwallowed(t *testing.T) {
	store := newMemStore()
	store.fail = true
	c := New(store, nil)

	id := c.Ensure()
	require.NotEmpty(t, id)
	require.Equal(t, id, c.Current())
}

func TestReset(t *testing.T) {
	store := newMemStore()
	c := New(store, nil)
	c.Ensure()
	c.MarkVerified(true)

	var got []string
	c.Subscribe(func(id string) { got = append(got, id) })
	c.Reset()

	require.Equal(t, "", c.Current())
	require.False(t, c.Verified())
	require.Equal(t, []string{""}, got)

	restored := New(store, nil)
	require.Equal(t, "", restored.Current())
	require.False(t, restored.Verified())
}

func TestEnsure_Concurrent(t *testing.T) {
	c := New(nil, nil)
	ids := make([]string, 20)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = c.Ensure()
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}
