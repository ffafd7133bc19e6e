package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/metinatakli/booking-service/internal/mocks"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type CachedCatalogTestSuite struct {
	suite.Suite
	redis    *mocks.MockRedisClient
	upstream *mocks.MockShowtimeCatalog
	cache    *CachedCatalog
	showtime *domain.Showtime
}

func TestCachedCatalogSuite(t *testing.T) {
	suite.Run(t, new(CachedCatalogTestSuite))
}

func (s *CachedCatalogTestSuite) SetupTest() {
	s.redis = new(mocks.MockRedisClient)
	s.upstream = new(mocks.MockShowtimeCatalog)
	s.cache = NewCachedCatalog(s.upstream, s.redis, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.showtime = &domain.Showtime{
		ID:          42,
		MovieID:     7,
		MovieTitle:  "Inception",
		TheaterID:   3,
		TheaterName: "Grand Cinema",
		StartTime:   time.Date(2025, 6, 1, 19, 30, 0, 0, time.UTC),
		Price:       decimal.NewFromInt(250),
	}
}

func (s *CachedCatalogTestSuite) TestGetShowtime() {
	cached, err := json.Marshal(s.showtime)
	s.Require().NoError(err)

	tests := []struct {
		name         string
		setup        func()
		wantUpstream bool
	}{
		{
			name: "cache hit",
			setup: func() {
				s.redis.On("Get", mock.Anything, "showtime:42").Return(redis.NewStringResult(string(cached), nil))
			},
		},
		{
			name: "cache miss fills the cache",
			setup: func() {
				s.redis.On("Get", mock.Anything, "showtime:42").Return(redis.NewStringResult("", redis.Nil))
				s.redis.On("Set", mock.Anything, "showtime:42", mock.Anything, time.Minute).Return(redis.NewStatusResult("OK", nil))
			},
			wantUpstream: true,
		},
		{
			name: "redis down",
			setup: func() {
				s.redis.On("Get", mock.Anything, "showtime:42").
					Return(redis.NewStringResult("", mocks.MockRedisError{Msg: "connection refused"}))
				s.redis.On("Set", mock.Anything, "showtime:42", mock.Anything, time.Minute).
					Return(redis.NewStatusResult("", mocks.MockRedisError{Msg: "connection refused"}))
			},
			wantUpstream: true,
		},
		{
			name: "malformed entry",
			setup: func() {
				s.redis.On("Get", mock.Anything, "showtime:42").Return(redis.NewStringResult("{not json", nil))
				s.redis.On("Set", mock.Anything, "showtime:42", mock.Anything, time.Minute).Return(redis.NewStatusResult("OK", nil))
			},
			wantUpstream: true,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			tt.setup()
			if tt.wantUpstream {
				s.upstream.On("GetShowtime", mock.Anything, int64(42)).Return(s.showtime, nil).Once()
			}

			got, err := s.cache.GetShowtime(context.Background(), 42)
			s.Require().NoError(err)

			s.Equal(s.showtime.MovieTitle, got.MovieTitle)
			s.True(s.showtime.Price.Equal(got.Price))
			s.True(s.showtime.StartTime.Equal(got.StartTime))

			if tt.wantUpstream {
				s.upstream.AssertExpectations(s.T())
				s.redis.AssertCalled(s.T(), "Set", mock.Anything, "showtime:42", mock.Anything, time.Minute)
			} else {
				s.upstream.AssertNotCalled(s.T(), "GetShowtime", mock.Anything, mock.Anything)
			}
		})
	}
}

func (s *CachedCatalogTestSuite) TestUpstreamErrorsAreNotCached() {
	s.redis.On("Get", mock.Anything, "showtime:42").Return(redis.NewStringResult("", redis.Nil))
	s.upstream.On("GetShowtime", mock.Anything, int64(42)).Return(nil, domain.ErrShowtimeNotFound)

	_, err := s.cache.GetShowtime(context.Background(), 42)

	s.ErrorIs(err, domain.ErrRecordNotFound)
	s.redis.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *CachedCatalogTestSuite) TestInvalidate() {
	s.redis.On("Del", mock.Anything, []string{"showtime:42"}).Return(redis.NewIntResult(1, nil))

	s.NoError(s.cache.Invalidate(context.Background(), 42))
}
