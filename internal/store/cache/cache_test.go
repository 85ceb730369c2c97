package cache

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"radar/internal/observation"
	"radar/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
	rows []observation.Observation
}

func (m *mockStore) Append(ctx context.Context, obs []observation.Observation) (int, error) {
	args := m.Called(ctx, obs)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) Scan(ctx context.Context, f store.Filter) iter.Seq2[observation.Observation, error] {
	m.Called(ctx, f)
	rows := m.rows
	return func(yield func(observation.Observation, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (m *mockStore) Dates(ctx context.Context, f store.Filter) ([]time.Time, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]time.Time), args.Error(1)
}

func (m *mockStore) Competitors(ctx context.Context, f store.Filter) ([]string, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) Count(ctx context.Context, f store.Filter) (int64, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Close() error { return nil }

func sample() observation.Observation {
	return observation.Observation{
		Date:       time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Competitor: "LOJA A", ProductID: "789", Price: decimal.NewFromInt(10),
	}
}

func TestWrapDisabled(t *testing.T) {
	inner := &mockStore{}
	assert.Same(t, store.Store(inner), Wrap(inner, 0))
}

func TestDatesMemoizedUntilAppend(t *testing.T) {
	ctx := context.Background()
	inner := &mockStore{}
	dates := []time.Time{sample().Date}
	inner.On("Dates", ctx, store.Filter{}).Return(dates, nil).Twice()
	inner.On("Append", ctx, mock.Anything).Return(1, nil).Once()

	s := New(inner, time.Minute)
	for range 3 {
		got, err := s.Dates(ctx, store.Filter{})
		require.NoError(t, err)
		assert.Equal(t, dates, got)
	}
	_, err := s.Append(ctx, []observation.Observation{sample()})
	require.NoError(t, err)
	_, err = s.Dates(ctx, store.Filter{})
	require.NoError(t, err)
	inner.AssertExpectations(t)
}

func TestPartialAppendInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := &mockStore{}
	inner.On("Competitors", ctx, store.Filter{}).Return([]string{"LOJA A"}, nil).Twice()
	partial := &store.PartialWriteError{Written: 1, Total: 2, Err: errors.New("boom")}
	inner.On("Append", ctx, mock.Anything).Return(1, partial).Once()

	s := New(inner, time.Minute)
	_, _ = s.Competitors(ctx, store.Filter{})
	_, err := s.Append(ctx, []observation.Observation{sample(), sample()})
	assert.ErrorAs(t, err, &partial)
	_, _ = s.Competitors(ctx, store.Filter{})
	inner.AssertExpectations(t)
}

func TestScanCachedAfterFullDrainAndExpires(t *testing.T) {
	ctx := context.Background()
	inner := &mockStore{rows: []observation.Observation{sample(), sample()}}
	f := store.ForDates(sample().Date)
	inner.On("Scan", ctx, f).Return().Twice()

	s := New(inner, time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	first, err := store.Collect(s.Scan(ctx, f))
	require.NoError(t, err)
	second, err := store.Collect(s.Scan(ctx, f))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	now = now.Add(2 * time.Minute)
	_, err = store.Collect(s.Scan(ctx, f))
	require.NoError(t, err)
	inner.AssertExpectations(t)
}

func TestPruneInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := &mockStore{}
	inner.On("Dates", ctx, store.Filter{}).Return([]time.Time{}, nil).Twice()
	inner.On("Prune", ctx, mock.Anything).Return(int64(4), nil).Once()

	s := New(inner, time.Minute)
	_, _ = s.Dates(ctx, store.Filter{})
	n, err := s.Prune(ctx, sample().Date)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	_, _ = s.Dates(ctx, store.Filter{})
	inner.AssertExpectations(t)
}
