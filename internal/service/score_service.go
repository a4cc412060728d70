package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain/score"
	"github.com/phrazzld/circles-api/internal/platform/cache"
	"github.com/phrazzld/circles-api/internal/platform/logger"
	"github.com/phrazzld/circles-api/internal/store"
)

const scoreServiceName = "score_service"

// ScoreService computes inclusive credit scores.
type ScoreService interface {
	// ScoreForUser computes the score of the user's stored financial profile.
	ScoreForUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// ScoreMetrics records cache effectiveness.
type ScoreMetrics interface {
	ScoreCacheHit()
	ScoreCacheMiss()
}

type scoreService struct {
	users   store.UserStore
	engine  score.Engine
	cache   cache.ScoreCache
	metrics ScoreMetrics
	logger  *slog.Logger
}

var _ ScoreService = (*scoreService)(nil)

// NewScoreService creates a ScoreService. A nil scoreCache disables caching
// and a nil metrics disables reporting.
func NewScoreService(
	users store.UserStore,
	engine score.Engine,
	scoreCache cache.ScoreCache,
	metrics ScoreMetrics,
	log *slog.Logger,
) (ScoreService, error) {
	if users == nil {
		return nil, &ServiceError{Service: scoreServiceName, Operation: "create_service", Message: "user store cannot be nil"}
	}
	if engine == nil {
		return nil, &ServiceError{Service: scoreServiceName, Operation: "create_service", Message: "engine cannot be nil"}
	}
	if log == nil {
		return nil, &ServiceError{Service: scoreServiceName, Operation: "create_service", Message: "logger cannot be nil"}
	}
	if scoreCache == nil {
		scoreCache = cache.Noop{}
	}
	if metrics == nil {
		metrics = noopScoreMetrics{}
	}
	return &scoreService{
		users:   users,
		engine:  engine,
		cache:   scoreCache,
		metrics: metrics,
		logger:  log.With(slog.String("component", scoreServiceName)),
	}, nil
}

// ScoreForUser implements ScoreService. Cache failures degrade to computing
// the score directly.
func (s *scoreService) ScoreForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("user_id", userID.String()))

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, newServiceError(scoreServiceName, "score_for_user", "failed to load user", err)
	}

	key := cache.ProfileKey(user.Profile)
	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn("score cache lookup failed", slog.String("error", err.Error()))
	}
	if found {
		s.metrics.ScoreCacheHit()
		return cached, nil
	}
	s.metrics.ScoreCacheMiss()

	result := s.engine.Compute(user.Profile)
	if err := s.cache.Set(ctx, key, result); err != nil {
		log.Warn("score cache store failed", slog.String("error", err.Error()))
	}

	log.Debug("credit score computed", slog.Int("score", result))
	return result, nil
}

type noopScoreMetrics struct{}

func (noopScoreMetrics) ScoreCacheHit()  {}
func (noopScoreMetrics) ScoreCacheMiss() {}
