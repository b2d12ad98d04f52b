package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"canopy/internal/ratelimit/models"
	"canopy/internal/ratelimit/store"
)

type LimiterSuite struct {
	suite.Suite
	limiter *Limiter
	ctx     context.Context
}

func TestLimiterSuite(t *testing.T) {
	suite.Run(t, new(LimiterSuite))
}

func (s *LimiterSuite) SetupTest() {
	limiter, err := New(store.NewMemory(), WithLimits(map[models.EndpointClass]models.Limit{
		models.ClassUpload: {Requests: 2, Window: time.Minute},
	}))
	s.Require().NoError(err)
	s.limiter = limiter
	s.ctx = context.Background()
}

func (s *LimiterSuite) exhaust(identifier string, class models.EndpointClass, n int) {
	s.T().Helper()
	for range n {
		result, err := s.limiter.Check(s.ctx, identifier, class)
		s.Require().NoError(err)
		s.Require().True(result.Allowed)
	}
}

func (s *LimiterSuite) TestCheck() {
	s.Run("overridden class uses the configured budget", func() {
		s.exhaust("alice", models.ClassUpload, 2)
		result, err := s.limiter.Check(s.ctx, "alice", models.ClassUpload)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(2, result.Limit)
		s.Positive(result.RetryAfter)
	})

	s.Run("classes absent from the override keep defaults", func() {
		result, err := s.limiter.Check(s.ctx, "bob", models.ClassMutation)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(30, result.Limit)
	})

	s.Run("classes do not share windows", func() {
		s.exhaust("carol", models.ClassUpload, 2)
		result, err := s.limiter.Check(s.ctx, "carol", models.ClassRead)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("identifiers do not share windows", func() {
		s.exhaust("dave", models.ClassUpload, 2)
		result, err := s.limiter.Check(s.ctx, "erin", models.ClassUpload)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})
}

func (s *LimiterSuite) TestCheckUnknownClass() {
	_, err := s.limiter.Check(s.ctx, "alice", models.EndpointClass("bulk"))
	s.Require().Error(err)
	s.Contains(err.Error(), "unknown endpoint class")
}

func (s *LimiterSuite) TestReset() {
	s.exhaust("frank", models.ClassUpload, 2)

	denied, err := s.limiter.Check(s.ctx, "frank", models.ClassUpload)
	s.Require().NoError(err)
	s.Require().False(denied.Allowed)

	s.Require().NoError(s.limiter.Reset(s.ctx, "frank", models.ClassUpload))

	result, err := s.limiter.Check(s.ctx, "frank", models.ClassUpload)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *LimiterSuite) TestNewRequiresStore() {
	_, err := New(nil)
	s.Require().Error(err)
}
