package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/helper-dispatch/internal/cache"
	"github.com/magabrotheeeer/helper-dispatch/internal/config"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
	"github.com/magabrotheeeer/helper-dispatch/internal/storage/repository"
)

// memStore повторяет семантику хранилища: счетчик ранга и вставка под одной блокировкой.
type memStore struct {
	mu        sync.Mutex
	requests  map[string]models.HelpRequest
	regs      map[string]map[string]models.HelperRegistration
	lastRank  map[string]int
	getCalls  int
	failWrite error
}

func newMemStore(reqs ...models.HelpRequest) *memStore {
	s := &memStore{
		requests: map[string]models.HelpRequest{},
		regs:     map[string]map[string]models.HelperRegistration{},
		lastRank: map[string]int{},
	}
	for _, r := range reqs {
		s.requests[r.ID] = r
	}
	return s
}

func (s *memStore) RegisterHelper(_ context.Context, requestID, subscriberID string, contactLimit int, now time.Time) (*models.HelperRegistration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return nil, false, s.failWrite
	}
	if _, ok := s.requests[requestID]; !ok {
		return nil, false, fmt.Errorf("storage.RegisterHelper: %w", repository.ErrNotFound)
	}
	if existing, ok := s.regs[requestID][subscriberID]; ok {
		return &existing, false, nil
	}
	rank := s.lastRank[requestID] + 1
	s.lastRank[requestID] = rank
	reg := models.HelperRegistration{
		RequestID:        requestID,
		SubscriberID:     subscriberID,
		Rank:             rank,
		HasContactAccess: rank <= contactLimit,
		RegisteredAt:     now.UTC(),
	}
	if s.regs[requestID] == nil {
		s.regs[requestID] = map[string]models.HelperRegistration{}
	}
	s.regs[requestID][subscriberID] = reg
	return &reg, true, nil
}

func (s *memStore) GetHelperRegistration(_ context.Context, requestID, subscriberID string) (*models.HelperRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	reg, ok := s.regs[requestID][subscriberID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &reg, nil
}

func (s *memStore) GetRequest(_ context.Context, id string) (*models.HelpRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var posted = models.HelpRequest{
	ID:          "R1",
	Category:    models.CategoryRepair,
	Title:       "Fix the gate",
	PosterID:    "poster",
	PosterName:  func() *string { s := "Ravi"; return &s }(),
	PosterPhone: "+919822222222",
}

func TestService_Register_Sequential(t *testing.T) {
	svc := New(newNoopLogger(), newMemStore(posted), nil, time.Minute, 5)
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		st, err := svc.Register(ctx, "R1", fmt.Sprintf("H%d", i))
		require.NoError(t, err)
		assert.True(t, st.Registered)
		assert.Equal(t, i, st.Rank)
		if i <= 5 {
			assert.True(t, st.HasContactAccess)
			require.NotNil(t, st.PosterPhone)
			assert.Equal(t, "+919822222222", *st.PosterPhone)
			assert.Equal(t, "Ravi", *st.PosterName)
		} else {
			assert.False(t, st.HasContactAccess)
			assert.Nil(t, st.PosterPhone, "sixth helper must not see the phone")
			assert.Nil(t, st.PosterName)
		}
	}

	again, err := svc.Register(ctx, "R1", "H3")
	require.NoError(t, err)
	assert.Equal(t, 3, again.Rank)
	assert.True(t, again.HasContactAccess)

	next, err := svc.Register(ctx, "R1", "H7")
	require.NoError(t, err)
	assert.Equal(t, 7, next.Rank)
}

func TestService_Register_Concurrent(t *testing.T) {
	svc := New(newNoopLogger(), newMemStore(posted), nil, time.Minute, 5)
	ctx := context.Background()

	const helpers = 10
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ranks []int
		open  int
	)
	for i := 0; i < helpers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			st, err := svc.Register(ctx, "R1", id)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ranks = append(ranks, st.Rank)
			if st.HasContactAccess {
				open++
			}
		}(fmt.Sprintf("C%d", i))
	}
	wg.Wait()

	sort.Ints(ranks)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, ranks)
	assert.Equal(t, 5, open)
}

func TestService_Register_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := New(newNoopLogger(), newMemStore(), nil, time.Minute, 5).Register(ctx, "missing", "H1")
	assert.ErrorIs(t, err, ErrRequestNotFound)

	store := newMemStore(posted)
	store.failWrite = errors.New("connection reset")
	_, err = New(newNoopLogger(), store, nil, time.Minute, 5).Register(ctx, "R1", "H1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRequestNotFound)
}

func TestService_Status(t *testing.T) {
	ctx := context.Background()
	svc := New(newNoopLogger(), newMemStore(posted), nil, time.Minute, 1)

	_, err := svc.Status(ctx, "R1", "H1")
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = svc.Register(ctx, "R1", "H1")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "R1", "H2")
	require.NoError(t, err)

	first, err := svc.Status(ctx, "R1", "H1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Rank)
	require.NotNil(t, first.PosterPhone)

	second, err := svc.Status(ctx, "R1", "H2")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Rank)
	assert.False(t, second.HasContactAccess)
	assert.Nil(t, second.PosterPhone)
}

func TestService_Status_ReadsThroughCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	c, err := cache.InitServer(context.Background(), config.RedisConnection{Addr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	store := newMemStore(posted)
	svc := New(newNoopLogger(), store, c, time.Minute, 5)

	_, err = svc.Register(ctx, "R1", "H1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.HelperKey("R1", "H1")))
	assert.True(t, mr.Exists(cache.RequestKey("R1")))

	for i := 0; i < 3; i++ {
		st, err := svc.Status(ctx, "R1", "H1")
		require.NoError(t, err)
		assert.Equal(t, 1, st.Rank)
		assert.Equal(t, "+919822222222", *st.PosterPhone)
	}
	assert.Equal(t, 0, store.getCalls, "registrations are immutable and served from cache")

	mr.Close()
	st, err := svc.Status(ctx, "R1", "H1")
	require.NoError(t, err, "cache outage falls back to the store")
	assert.Equal(t, 1, st.Rank)
	assert.Equal(t, 1, store.getCalls)
}
