package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

type memoryCache struct {
	values map[string][]byte
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

type memberSourceStub struct {
	calls   int
	members map[string][]string
}

func (s *memberSourceStub) ListIDsByDepartment(ctx context.Context, department string) ([]string, error) {
	s.calls++
	return s.members[department], nil
}

func TestDepartmentDirectoryCachesMembership(t *testing.T) {
	source := &memberSourceStub{members: map[string][]string{"Parks": {"u-1", "u-2"}}}
	cache := newMemoryCache()
	directory := NewDepartmentDirectory(source, NewCacheService(cache, nil, time.Minute, zap.NewNop(), true), time.Minute)

	for i := 0; i < 2; i++ {
		ids, err := directory.Members(context.Background(), " Parks ")
		require.NoError(t, err)
		assert.Equal(t, []string{"u-1", "u-2"}, ids)
	}
	assert.Equal(t, 1, source.calls)
	assert.Contains(t, cache.values, "directory:department:Parks")

	directory.Forget(context.Background(), "Parks")
	_, err := directory.Members(context.Background(), "Parks")
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestDepartmentDirectoryKeepsCaseDistinctDepartmentsApart(t *testing.T) {
	source := &memberSourceStub{members: map[string][]string{"Parks": {"u-1"}, "PARKS": {"u-9"}}}
	directory := NewDepartmentDirectory(source, NewCacheService(newMemoryCache(), nil, time.Minute, zap.NewNop(), true), time.Minute)

	ids, err := directory.Members(context.Background(), "Parks")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1"}, ids)

	ids, err = directory.Members(context.Background(), "PARKS")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-9"}, ids)
	assert.Equal(t, 2, source.calls)
}

func TestDepartmentDirectoryFallsBackWhenCacheBreaks(t *testing.T) {
	source := &memberSourceStub{members: map[string][]string{"Roads": {"u-7"}}}
	cache := newMemoryCache()
	cache.getErr = errors.New("connection refused")
	directory := NewDepartmentDirectory(source, NewCacheService(cache, nil, time.Minute, zap.NewNop(), true), time.Minute)

	ids, err := directory.Members(context.Background(), "Roads")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-7"}, ids)
}

func TestDepartmentDirectoryWithoutCache(t *testing.T) {
	source := &memberSourceStub{members: map[string][]string{"Roads": {"u-7"}}}
	directory := NewDepartmentDirectory(source, nil, 0)

	ids, err := directory.Members(context.Background(), "Roads")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-7"}, ids)

	ids, err = directory.Members(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 1, source.calls)
}
