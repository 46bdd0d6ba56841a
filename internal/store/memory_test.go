package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/brokerhub/internal/model"
)

func newConn(userID uuid.UUID, brokerID model.BrokerID, status model.ConnectionStatus) *model.Connection {
	now := time.Now().UTC()
	return &model.Connection{
		ID:        uuid.New(),
		UserID:    userID,
		BrokerID:  brokerID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStore_ConnectionCRUD(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	conn := newConn(userID, model.BrokerAlpaca, model.ConnectionPending)
	require.NoError(t, s.CreateConnection(ctx, conn))

	got, err := s.GetConnection(ctx, conn.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, conn.ID, got.ID)
	assert.Equal(t, model.ConnectionPending, got.Status)

	got.Status = model.ConnectionActive
	require.NoError(t, s.UpdateConnection(ctx, got))

	updated, err := s.GetConnection(ctx, conn.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionActive, updated.Status)
}

func TestMemoryStore_GetConnection_WrongUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conn := newConn(uuid.New(), model.BrokerAlpaca, model.ConnectionActive)
	require.NoError(t, s.CreateConnection(ctx, conn))

	_, err := s.GetConnection(ctx, conn.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_UpdateConnection_Missing(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpdateConnection(context.Background(), newConn(uuid.New(), model.BrokerAlpaca, model.ConnectionActive))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListConnections_ExcludesRevoked(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, s.CreateConnection(ctx, newConn(userID, model.BrokerAlpaca, model.ConnectionActive)))
	require.NoError(t, s.CreateConnection(ctx, newConn(userID, model.BrokerETrade, model.ConnectionRevoked)))
	require.NoError(t, s.CreateConnection(ctx, newConn(uuid.New(), model.BrokerAlpaca, model.ConnectionActive)))

	conns, err := s.ListConnections(ctx, userID)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, model.BrokerAlpaca, conns[0].BrokerID)
}

func TestMemoryStore_FindPendingConnection_ReturnsLatest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	older := newConn(userID, model.BrokerAlpaca, model.ConnectionPending)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newConn(userID, model.BrokerAlpaca, model.ConnectionPending)
	require.NoError(t, s.CreateConnection(ctx, older))
	require.NoError(t, s.CreateConnection(ctx, newer))

	got, err := s.FindPendingConnection(ctx, userID, model.BrokerAlpaca)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
}

func TestMemoryStore_FindPendingConnection_NoneLeft(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, s.CreateConnection(ctx, newConn(userID, model.BrokerAlpaca, model.ConnectionActive)))

	_, err := s.FindPendingConnection(ctx, userID, model.BrokerAlpaca)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeletePendingConnections(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	pending := newConn(userID, model.BrokerAlpaca, model.ConnectionPending)
	active := newConn(userID, model.BrokerAlpaca, model.ConnectionActive)
	otherBroker := newConn(userID, model.BrokerETrade, model.ConnectionPending)
	require.NoError(t, s.CreateConnection(ctx, pending))
	require.NoError(t, s.CreateConnection(ctx, active))
	require.NoError(t, s.CreateConnection(ctx, otherBroker))

	require.NoError(t, s.DeletePendingConnections(ctx, userID, model.BrokerAlpaca))

	_, err := s.GetConnection(ctx, pending.ID, userID)
	assert.ErrorIs(t, err, ErrNotFound, "pending row should be superseded")

	_, err = s.GetConnection(ctx, active.ID, userID)
	assert.NoError(t, err, "active connection must survive")

	_, err = s.GetConnection(ctx, otherBroker.ID, userID)
	assert.NoError(t, err, "other broker's pending row must survive")
}

func TestMemoryStore_ListAccounts_ActiveConnectionsOnly(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	active := newConn(userID, model.BrokerAlpaca, model.ConnectionActive)
	revoked := newConn(userID, model.BrokerETrade, model.ConnectionRevoked)
	require.NoError(t, s.CreateConnection(ctx, active))
	require.NoError(t, s.CreateConnection(ctx, revoked))

	require.NoError(t, s.CreateAccount(ctx, &model.BrokerAccount{
		ID:              uuid.New(),
		ConnectionID:    active.ID,
		UserID:          userID,
		BrokerID:        model.BrokerAlpaca,
		BrokerAccountID: "acct-1",
	}))
	require.NoError(t, s.CreateAccount(ctx, &model.BrokerAccount{
		ID:              uuid.New(),
		ConnectionID:    revoked.ID,
		UserID:          userID,
		BrokerID:        model.BrokerETrade,
		BrokerAccountID: "acct-2",
	}))

	accounts, err := s.ListAccounts(ctx, userID, "")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acct-1", accounts[0].BrokerAccountID)

	byBroker, err := s.ListAccounts(ctx, userID, model.BrokerETrade)
	require.NoError(t, err)
	assert.Empty(t, byBroker)
}

func TestMemoryStore_CopyOnReturn(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	conn := newConn(userID, model.BrokerAlpaca, model.ConnectionActive)
	require.NoError(t, s.CreateConnection(ctx, conn))

	got, err := s.GetConnection(ctx, conn.ID, userID)
	require.NoError(t, err)
	got.Status = model.ConnectionError

	again, err := s.GetConnection(ctx, conn.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionActive, again.Status, "mutating a returned copy must not affect the store")
}
