// Package store defines the persistence interface for broker connection and
// account rows. Implementations include PostgreSQL (source of truth) and
// in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/newthinker/brokerhub/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract consumed by the connection manager and
// the aggregation services.
type Store interface {
	// --- Connections ---

	// CreateConnection persists a new connection row.
	CreateConnection(ctx context.Context, c *model.Connection) error

	// GetConnection retrieves a connection by id, scoped to the user.
	GetConnection(ctx context.Context, id, userID uuid.UUID) (*model.Connection, error)

	// ListConnections returns the user's connections, excluding revoked ones.
	ListConnections(ctx context.Context, userID uuid.UUID) ([]model.Connection, error)

	// UpdateConnection persists status, token reference and timestamps.
	UpdateConnection(ctx context.Context, c *model.Connection) error

	// FindPendingConnection returns the pending row for a (user, broker)
	// pair, or ErrNotFound.
	FindPendingConnection(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID) (*model.Connection, error)

	// DeletePendingConnections removes stale pending rows for the pair so a
	// newly initiated handshake supersedes them.
	DeletePendingConnections(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID) error

	// --- Accounts ---

	// CreateAccount persists a vendor-side account enumerated under a
	// connection.
	CreateAccount(ctx context.Context, a *model.BrokerAccount) error

	// ListAccounts returns accounts under the user's active connections,
	// optionally filtered by broker.
	ListAccounts(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID) ([]model.BrokerAccount, error)
}
