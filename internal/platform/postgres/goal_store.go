package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/platform/logger"
	"github.com/phrazzld/circles-api/internal/store"
)

// PostgresGoalStore implements store.GoalStore on PostgreSQL.
type PostgresGoalStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresGoalStore creates a goal store on db. If logger is nil, the
// default logger is used.
func NewPostgresGoalStore(db store.DBTX, logger *slog.Logger) *PostgresGoalStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresGoalStore{
		db:     db,
		logger: logger.With(slog.String("component", "goal_store")),
	}
}

var _ store.GoalStore = (*PostgresGoalStore)(nil)

const goalColumns = `id, user_id, name, target_amount, current_amount, deadline, category, created_at, updated_at`

// Create implements store.GoalStore.Create.
func (s *PostgresGoalStore) Create(ctx context.Context, goal *domain.FinancialGoal) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := goal.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO financial_goals (`+goalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		goal.ID,
		goal.UserID,
		goal.Name,
		goal.TargetAmount,
		goal.CurrentAmount,
		goal.Deadline,
		string(goal.Category),
		goal.CreatedAt,
		goal.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create goal",
			slog.String("error", err.Error()),
			slog.String("goal_id", goal.ID.String()))
		return MapError(err)
	}

	log.Info("goal created",
		slog.String("goal_id", goal.ID.String()),
		slog.String("user_id", goal.UserID.String()))
	return nil
}

// GetByID implements store.GoalStore.GetByID.
func (s *PostgresGoalStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.FinancialGoal, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	goal, err := scanGoal(s.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM financial_goals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("goal not found", slog.String("goal_id", id.String()))
			return nil, store.ErrGoalNotFound
		}
		log.Error("failed to get goal",
			slog.String("error", err.Error()),
			slog.String("goal_id", id.String()))
		return nil, MapError(err)
	}
	return goal, nil
}

// ListByUser implements store.GoalStore.ListByUser.
func (s *PostgresGoalStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.FinancialGoal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM financial_goals WHERE user_id = $1 ORDER BY deadline, created_at`,
		userID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	goals := make([]*domain.FinancialGoal, 0)
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, MapError(err)
		}
		goals = append(goals, g)
	}
	return goals, MapError(rows.Err())
}

// Update implements store.GoalStore.Update.
func (s *PostgresGoalStore) Update(ctx context.Context, goal *domain.FinancialGoal) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := goal.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE financial_goals
		SET name = $1, target_amount = $2, current_amount = $3, deadline = $4,
		    category = $5, updated_at = $6
		WHERE id = $7`,
		goal.Name,
		goal.TargetAmount,
		goal.CurrentAmount,
		goal.Deadline,
		string(goal.Category),
		goal.UpdatedAt,
		goal.ID,
	)
	if err != nil {
		log.Error("failed to update goal",
			slog.String("error", err.Error()),
			slog.String("goal_id", goal.ID.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrGoalNotFound)
}

func scanGoal(row rowScanner) (*domain.FinancialGoal, error) {
	var (
		g        domain.FinancialGoal
		category string
	)
	err := row.Scan(
		&g.ID,
		&g.UserID,
		&g.Name,
		&g.TargetAmount,
		&g.CurrentAmount,
		&g.Deadline,
		&category,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Category = domain.GoalCategory(category)
	g.Deadline = g.Deadline.UTC()
	return &g, nil
}
