package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newthinker/brokerhub/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const connectionColumns = `id, user_id, broker_id, status, token_ref,
	connected_at, last_sync_at, expires_at, is_primary, nickname,
	created_at, updated_at`

func scanConnection(row pgx.Row) (*model.Connection, error) {
	var c model.Connection
	err := row.Scan(&c.ID, &c.UserID, &c.BrokerID, &c.Status, &c.TokenRef,
		&c.ConnectedAt, &c.LastSyncAt, &c.ExpiresAt, &c.IsPrimary, &c.Nickname,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) CreateConnection(ctx context.Context, c *model.Connection) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO broker_connections
		   (id, user_id, broker_id, status, token_ref,
		    connected_at, last_sync_at, expires_at, is_primary, nickname,
		    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.UserID, c.BrokerID, c.Status, c.TokenRef,
		c.ConnectedAt, c.LastSyncAt, c.ExpiresAt, c.IsPrimary, c.Nickname,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConnection(ctx context.Context, id, userID uuid.UUID) (*model.Connection, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+connectionColumns+`
		 FROM broker_connections WHERE id = $1 AND user_id = $2`, id, userID)
	return scanConnection(row)
}

func (s *PostgresStore) ListConnections(ctx context.Context, userID uuid.UUID) ([]model.Connection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+connectionColumns+`
		 FROM broker_connections
		 WHERE user_id = $1 AND status != $2
		 ORDER BY created_at`, userID, model.ConnectionRevoked)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var connections []model.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, *c)
	}
	return connections, rows.Err()
}

func (s *PostgresStore) UpdateConnection(ctx context.Context, c *model.Connection) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE broker_connections
		 SET status = $2, token_ref = $3, connected_at = $4,
		     last_sync_at = $5, expires_at = $6, is_primary = $7,
		     nickname = $8, updated_at = now()
		 WHERE id = $1`,
		c.ID, c.Status, c.TokenRef, c.ConnectedAt,
		c.LastSyncAt, c.ExpiresAt, c.IsPrimary, c.Nickname,
	)
	if err != nil {
		return fmt.Errorf("update connection %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindPendingConnection(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID) (*model.Connection, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+connectionColumns+`
		 FROM broker_connections
		 WHERE user_id = $1 AND broker_id = $2 AND status = $3
		 ORDER BY created_at DESC
		 LIMIT 1`, userID, brokerID, model.ConnectionPending)
	return scanConnection(row)
}

func (s *PostgresStore) DeletePendingConnections(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM broker_connections
		 WHERE user_id = $1 AND broker_id = $2 AND status = $3`,
		userID, brokerID, model.ConnectionPending)
	return err
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.BrokerAccount) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO broker_accounts
		   (id, connection_id, user_id, broker_id, broker_account_id,
		    account_number_masked, account_type, account_name,
		    is_default, include_in_aggregate, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.ConnectionID, a.UserID, a.BrokerID, a.BrokerAccountID,
		a.AccountNumberMasked, a.AccountType, a.AccountName,
		a.IsDefault, a.IncludeInAggregate, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID) ([]model.BrokerAccount, error) {
	query := `SELECT a.id, a.connection_id, a.user_id, a.broker_id, a.broker_account_id,
	                 a.account_number_masked, a.account_type, a.account_name,
	                 a.is_default, a.include_in_aggregate, a.created_at
	          FROM broker_accounts a
	          JOIN broker_connections c ON c.id = a.connection_id
	          WHERE a.user_id = $1 AND c.status = $2`
	args := []any{userID, model.ConnectionActive}
	if brokerID != "" {
		query += ` AND a.broker_id = $3`
		args = append(args, brokerID)
	}
	query += ` ORDER BY a.created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.BrokerAccount
	for rows.Next() {
		var a model.BrokerAccount
		if err := rows.Scan(&a.ID, &a.ConnectionID, &a.UserID, &a.BrokerID, &a.BrokerAccountID,
			&a.AccountNumberMasked, &a.AccountType, &a.AccountName,
			&a.IsDefault, &a.IncludeInAggregate, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
