package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/platform/logger"
	"github.com/phrazzld/circles-api/internal/store"
)

// PostgresCircleStore implements store.CircleStore on PostgreSQL.
//
// A circle spans the lending_circles and circle_members tables, so Create and
// Update run inside a transaction.
type PostgresCircleStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCircleStore creates a circle store on db. If logger is nil, the
// default logger is used.
func NewPostgresCircleStore(db *sql.DB, logger *slog.Logger) *PostgresCircleStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCircleStore{
		db:     db,
		logger: logger.With(slog.String("component", "circle_store")),
	}
}

var _ store.CircleStore = (*PostgresCircleStore)(nil)

const circleColumns = `id, name, creator_id, total_amount, contribution_amount, duration_months, status, version, activated_at, created_at, updated_at`

// Create implements store.CircleStore.Create.
func (s *PostgresCircleStore) Create(ctx context.Context, circle *domain.LendingCircle) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := circle.Validate(); err != nil {
		log.Warn("circle validation failed during create",
			slog.String("error", err.Error()),
			slog.String("circle_id", circle.ID.String()))
		return err
	}

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lending_circles (`+circleColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			circle.ID,
			circle.Name,
			circle.CreatorID,
			circle.TotalAmount,
			circle.ContributionAmount,
			circle.DurationMonths,
			string(circle.Status),
			circle.Version,
			circle.ActivatedAt,
			circle.CreatedAt,
			circle.UpdatedAt,
		)
		if err != nil {
			return MapError(err)
		}
		return insertMembers(ctx, tx, circle)
	})
	if err != nil {
		log.Error("failed to create circle",
			slog.String("error", err.Error()),
			slog.String("circle_id", circle.ID.String()))
		return err
	}

	log.Info("circle created",
		slog.String("circle_id", circle.ID.String()),
		slog.String("creator_id", circle.CreatorID.String()))
	return nil
}

// GetByID implements store.CircleStore.GetByID.
func (s *PostgresCircleStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.LendingCircle, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	circle, err := scanCircle(s.db.QueryRowContext(ctx,
		`SELECT `+circleColumns+` FROM lending_circles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("circle not found", slog.String("circle_id", id.String()))
			return nil, store.ErrCircleNotFound
		}
		log.Error("failed to get circle",
			slog.String("error", err.Error()),
			slog.String("circle_id", id.String()))
		return nil, MapError(err)
	}

	if err := s.loadMembers(ctx, []*domain.LendingCircle{circle}); err != nil {
		return nil, err
	}
	return circle, nil
}

// List implements store.CircleStore.List.
func (s *PostgresCircleStore) List(
	ctx context.Context,
	filter store.CircleFilter,
) ([]*domain.LendingCircle, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.MemberID != uuid.Nil {
		args = append(args, filter.MemberID)
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM circle_members m WHERE m.circle_id = lending_circles.id AND m.user_id = $%d)",
			len(args),
		))
	}

	query := `SELECT ` + circleColumns + ` FROM lending_circles`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	args = append(args, limit, max(filter.Offset, 0))
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list circles", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	circles := make([]*domain.LendingCircle, 0)
	for rows.Next() {
		c, err := scanCircle(rows)
		if err != nil {
			return nil, MapError(err)
		}
		circles = append(circles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	if err := s.loadMembers(ctx, circles); err != nil {
		return nil, err
	}
	return circles, nil
}

// Update implements store.CircleStore.Update.
func (s *PostgresCircleStore) Update(
	ctx context.Context,
	circle *domain.LendingCircle,
	expectedVersion int64,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := circle.Validate(); err != nil {
		return err
	}

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE lending_circles
			SET name = $1, status = $2, version = $3, activated_at = $4, updated_at = $5
			WHERE id = $6 AND version = $7`,
			circle.Name,
			string(circle.Status),
			circle.Version,
			circle.ActivatedAt,
			circle.UpdatedAt,
			circle.ID,
			expectedVersion,
		)
		if err != nil {
			return MapError(err)
		}
		if err := CheckRowsAffected(result, store.ErrConflict); err != nil {
			if !errors.Is(err, store.ErrConflict) {
				return err
			}
			var exists int
			switch err := tx.QueryRowContext(ctx,
				`SELECT 1 FROM lending_circles WHERE id = $1`, circle.ID).Scan(&exists); {
			case errors.Is(err, sql.ErrNoRows):
				return store.ErrCircleNotFound
			case err != nil:
				return MapError(err)
			}
			return store.ErrConflict
		}
		return insertMembers(ctx, tx, circle)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Warn("stale circle update rejected",
				slog.String("circle_id", circle.ID.String()),
				slog.Int64("expected_version", expectedVersion))
		} else if !errors.Is(err, store.ErrCircleNotFound) {
			log.Error("failed to update circle",
				slog.String("error", err.Error()),
				slog.String("circle_id", circle.ID.String()))
		}
		return err
	}

	log.Debug("circle updated",
		slog.String("circle_id", circle.ID.String()),
		slog.Int64("version", circle.Version),
		slog.String("status", string(circle.Status)))
	return nil
}

// AddContribution implements store.CircleStore.AddContribution.
func (s *PostgresCircleStore) AddContribution(ctx context.Context, c *domain.Contribution) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO circle_contributions (id, circle_id, member_id, amount, period, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.CircleID, c.MemberID, c.Amount, c.Period, c.CreatedAt,
	)
	if err != nil {
		err = MapError(err)
		if errors.Is(err, store.ErrContributionExists) {
			return err
		}
		log.Error("failed to add contribution",
			slog.String("error", err.Error()),
			slog.String("circle_id", c.CircleID.String()))
		return err
	}

	log.Info("contribution recorded",
		slog.String("circle_id", c.CircleID.String()),
		slog.String("member_id", c.MemberID.String()),
		slog.Int("period", c.Period))
	return nil
}

// ListContributions implements store.CircleStore.ListContributions.
func (s *PostgresCircleStore) ListContributions(
	ctx context.Context,
	circleID uuid.UUID,
) ([]*domain.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, circle_id, member_id, amount, period, created_at
		FROM circle_contributions
		WHERE circle_id = $1
		ORDER BY period, created_at`, circleID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	contributions := make([]*domain.Contribution, 0)
	for rows.Next() {
		var c domain.Contribution
		if err := rows.Scan(&c.ID, &c.CircleID, &c.MemberID, &c.Amount, &c.Period, &c.CreatedAt); err != nil {
			return nil, MapError(err)
		}
		contributions = append(contributions, &c)
	}
	return contributions, MapError(rows.Err())
}

// loadMembers fills Members for each circle in join order with one query.
func (s *PostgresCircleStore) loadMembers(ctx context.Context, circles []*domain.LendingCircle) error {
	if len(circles) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.LendingCircle, len(circles))
	ids := make([]string, 0, len(circles))
	for _, c := range circles {
		byID[c.ID] = c
		ids = append(ids, c.ID.String())
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT circle_id, user_id
		FROM circle_members
		WHERE circle_id = ANY($1::uuid[])
		ORDER BY circle_id, position`, ids)
	if err != nil {
		return MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var circleID, userID uuid.UUID
		if err := rows.Scan(&circleID, &userID); err != nil {
			return MapError(err)
		}
		if c, ok := byID[circleID]; ok {
			c.Members = append(c.Members, userID)
		}
	}
	return MapError(rows.Err())
}

// insertMembers writes any members not yet stored. Members are append-only,
// so existing rows are left alone.
func insertMembers(ctx context.Context, db store.DBTX, circle *domain.LendingCircle) error {
	for i, member := range circle.Members {
		_, err := db.ExecContext(ctx, `
			INSERT INTO circle_members (circle_id, user_id, position, joined_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (circle_id, user_id) DO NOTHING`,
			circle.ID, member, i, circle.UpdatedAt,
		)
		if err != nil {
			return MapError(err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCircle(row rowScanner) (*domain.LendingCircle, error) {
	var (
		c           domain.LendingCircle
		status      string
		activatedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.CreatorID,
		&c.TotalAmount,
		&c.ContributionAmount,
		&c.DurationMonths,
		&status,
		&c.Version,
		&activatedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = domain.CircleStatus(status)
	if activatedAt.Valid {
		at := activatedAt.Time.UTC()
		c.ActivatedAt = &at
	}
	return &c, nil
}
