package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/store/memory"
)

func TestGetMissing(t *testing.T) {
	s := memory.New()
	_, err := s.Get(context.Background(), store.ClassInstance, "admin")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplyAndGet(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	err := s.Apply(ctx, 10, []store.Mutation{
		{Class: store.ClassInstance, Key: "plan_count", Value: []byte("1"), LiveUntil: 100},
		{Class: store.ClassPersistent, Key: "plan/1", Value: []byte(`{"id":1}`), LiveUntil: 200},
	})
	require.NoError(t, err)

	e, err := s.Get(ctx, store.ClassPersistent, "plan/1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(e.Value))
	assert.Equal(t, uint32(200), e.LiveUntil)

	// Same key under another class is a distinct entry.
	_, err = s.Get(ctx, store.ClassInstance, "plan/1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Apply(ctx, 0, []store.Mutation{
		{Class: store.ClassInstance, Key: "k", Value: []byte("abc"), LiveUntil: 5},
	}))

	e, err := s.Get(ctx, store.ClassInstance, "k")
	require.NoError(t, err)
	e.Value[0] = 'x'

	again, err := s.Get(ctx, store.ClassInstance, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again.Value))
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Apply(ctx, 0, []store.Mutation{
		{Class: store.ClassPersistent, Key: "old", Value: []byte("1"), LiveUntil: 9},
		{Class: store.ClassPersistent, Key: "edge", Value: []byte("1"), LiveUntil: 10},
		{Class: store.ClassPersistent, Key: "new", Value: []byte("1"), LiveUntil: 50},
	}))

	n, err := s.Purge(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, s.Len())

	// The evicted key stays distinguishable from one never written.
	_, err = s.Get(ctx, store.ClassPersistent, "old")
	assert.ErrorIs(t, err, store.ErrArchived)
	_, err = s.Get(ctx, store.ClassPersistent, "never")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A second purge finds nothing left to evict.
	n, err = s.Purge(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApplyRestoresArchived(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Apply(ctx, 0, []store.Mutation{
		{Class: store.ClassPersistent, Key: "k", Value: []byte("1"), LiveUntil: 1},
	}))
	_, err := s.Purge(ctx, 5)
	require.NoError(t, err)

	require.NoError(t, s.Apply(ctx, 5, []store.Mutation{
		{Class: store.ClassPersistent, Key: "k", Value: []byte("2"), LiveUntil: 50},
	}))
	e, err := s.Get(ctx, store.ClassPersistent, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", string(e.Value))
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), store.ErrClosed)
	assert.ErrorIs(t, s.Apply(ctx, 0, nil), store.ErrClosed)
	_, err := s.Get(ctx, store.ClassInstance, "k")
	assert.ErrorIs(t, err, store.ErrClosed)
}
