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

// PostgresMicrograntStore implements store.MicrograntStore on PostgreSQL.
type PostgresMicrograntStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresMicrograntStore creates a microgrant store on db. If logger is
// nil, the default logger is used.
func NewPostgresMicrograntStore(db store.DBTX, logger *slog.Logger) *PostgresMicrograntStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresMicrograntStore{
		db:     db,
		logger: logger.With(slog.String("component", "microgrant_store")),
	}
}

var _ store.MicrograntStore = (*PostgresMicrograntStore)(nil)

// Reads join users for the owner's display name.
const micrograntSelect = `
	SELECT g.id, g.owner_id, u.name, g.business_name, g.description, g.amount_requested,
	       g.status, g.created_at, g.updated_at
	FROM microgrants g
	JOIN users u ON u.id = g.owner_id`

// Create implements store.MicrograntStore.Create. An unknown owner violates
// the foreign key and yields store.ErrInvalidEntity.
func (s *PostgresMicrograntStore) Create(ctx context.Context, grant *domain.Microgrant) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := grant.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO microgrants (id, owner_id, business_name, description, amount_requested,
		                         status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		grant.ID,
		grant.OwnerID,
		grant.BusinessName,
		grant.Description,
		grant.AmountRequested,
		string(grant.Status),
		grant.CreatedAt,
		grant.UpdatedAt,
	)
	if err != nil {
		err = MapError(err)
		log.Error("failed to create microgrant",
			slog.String("error", err.Error()),
			slog.String("microgrant_id", grant.ID.String()))
		return err
	}

	log.Info("microgrant created",
		slog.String("microgrant_id", grant.ID.String()),
		slog.String("owner_id", grant.OwnerID.String()))
	return nil
}

// GetByID implements store.MicrograntStore.GetByID.
func (s *PostgresMicrograntStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Microgrant, error) {
	grant, err := scanMicrogrant(s.db.QueryRowContext(ctx, micrograntSelect+` WHERE g.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrMicrograntNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get microgrant",
			slog.String("error", err.Error()),
			slog.String("microgrant_id", id.String()))
		return nil, MapError(err)
	}
	return grant, nil
}

// List implements store.MicrograntStore.List.
func (s *PostgresMicrograntStore) List(ctx context.Context, filter store.MicrograntFilter) ([]*domain.Microgrant, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("g.status = $%d", len(args)))
	}
	if filter.OwnerID != uuid.Nil {
		args = append(args, filter.OwnerID)
		conds = append(conds, fmt.Sprintf("g.owner_id = $%d", len(args)))
	}

	query := micrograntSelect
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	args = append(args, limit, max(filter.Offset, 0))
	query += fmt.Sprintf(` ORDER BY g.created_at DESC, g.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list microgrants",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	grants := make([]*domain.Microgrant, 0)
	for rows.Next() {
		g, err := scanMicrogrant(rows)
		if err != nil {
			return nil, MapError(err)
		}
		grants = append(grants, g)
	}
	return grants, MapError(rows.Err())
}

func scanMicrogrant(row rowScanner) (*domain.Microgrant, error) {
	var (
		g      domain.Microgrant
		status string
	)
	err := row.Scan(
		&g.ID,
		&g.OwnerID,
		&g.OwnerName,
		&g.BusinessName,
		&g.Description,
		&g.AmountRequested,
		&status,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Status = domain.MicrograntStatus(status)
	return &g, nil
}
