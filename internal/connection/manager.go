// Package connection implements the broker connection lifecycle: initiating
// the OAuth handshake, completing the callback, token refresh and disconnect.
// It owns the pending/active/expired/revoked/error state machine and is the
// only component that writes token bundles to the cache.
package connection

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newthinker/brokerhub/internal/adapter"
	"github.com/newthinker/brokerhub/internal/cache"
	"github.com/newthinker/brokerhub/internal/core"
	"github.com/newthinker/brokerhub/internal/credentials"
	"github.com/newthinker/brokerhub/internal/metrics"
	"github.com/newthinker/brokerhub/internal/model"
	"github.com/newthinker/brokerhub/internal/store"
)

// handshakeState is the server-side record of an in-flight OAuth handshake,
// stored in the cache under the state token for the handshake TTL. The
// request token secret never travels through the user's browser; it is
// re-injected into the callback payload from here.
type handshakeState struct {
	UserID             string `json:"user_id"`
	BrokerID           string `json:"broker_id"`
	ConnectionID       string `json:"connection_id"`
	RedirectURI        string `json:"redirect_uri"`
	RequestToken       string `json:"request_token,omitempty"`
	RequestTokenSecret string `json:"request_token_secret,omitempty"`
	CreatedAt          int64  `json:"created_at"`
}

// InitiateResult is returned from Initiate: where to send the user, plus the
// connection row created in the pending state.
type InitiateResult struct {
	AuthorizationURL string            `json:"authorization_url"`
	State            string            `json:"state"`
	IsOOB            bool              `json:"is_oob"`
	Connection       *model.Connection `json:"connection"`
}

// Manager drives the connection state machine. All methods are safe for
// concurrent use; per-connection serialization is delegated to the store.
type Manager struct {
	registry *adapter.Registry
	store    store.Store
	cache    cache.Cache
	metrics  *metrics.Registry
	codec    *credentials.Codec
	log      *zap.Logger
	now      func() time.Time
}

// NewManager wires the connection manager. A nil metrics registry disables
// instrumentation; a nil codec stores token bundles unencrypted.
func NewManager(registry *adapter.Registry, st store.Store, c cache.Cache, m *metrics.Registry, codec *credentials.Codec, log *zap.Logger) *Manager {
	return &Manager{
		registry: registry,
		store:    st,
		cache:    c,
		metrics:  m,
		codec:    codec,
		log:      log,
		now:      time.Now,
	}
}

// newState generates an unguessable OAuth state token.
func newState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Initiate starts the OAuth handshake for a (user, broker) pair. Any stale
// pending connection for the pair is superseded: its row is removed and a
// fresh one created, so only the newest handshake can complete.
func (m *Manager) Initiate(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID, redirectURI string) (*InitiateResult, error) {
	ad, err := m.registry.Get(brokerID)
	if err != nil {
		return nil, err
	}
	if !m.cache.Available() {
		return nil, core.ErrCacheUnavailable
	}

	if err := m.store.DeletePendingConnections(ctx, userID, brokerID); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}

	state, err := newState()
	if err != nil {
		return nil, err
	}

	auth, err := ad.AuthorizationURL(ctx, state, redirectURI)
	if err != nil {
		return nil, err
	}

	now := m.now()
	conn := &model.Connection{
		ID:        uuid.New(),
		UserID:    userID,
		BrokerID:  brokerID,
		Status:    model.ConnectionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateConnection(ctx, conn); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}

	hs := handshakeState{
		UserID:             userID.String(),
		BrokerID:           string(brokerID),
		ConnectionID:       conn.ID.String(),
		RedirectURI:        redirectURI,
		RequestToken:       auth.RequestToken,
		RequestTokenSecret: auth.RequestTokenSecret,
		CreatedAt:          now.Unix(),
	}
	raw, err := json.Marshal(hs)
	if err != nil {
		return nil, err
	}
	if !m.cache.Set(ctx, cache.StateKey(state), raw, cache.TTLHandshake) {
		return nil, core.ErrCacheUnavailable
	}

	if m.metrics != nil {
		m.metrics.RecordHandshake(string(brokerID), "initiated")
	}
	m.log.Info("oauth handshake initiated",
		zap.String("broker", string(brokerID)),
		zap.String("connection_id", conn.ID.String()),
		zap.Bool("oob", auth.IsOOB))

	return &InitiateResult{
		AuthorizationURL: auth.URL,
		State:            state,
		IsOOB:            auth.IsOOB,
		Connection:       conn,
	}, nil
}

// Complete finishes the handshake: validates the state token, exchanges the
// callback payload for tokens, caches the bundle, activates the connection
// and enumerates the vendor accounts. The state token is consumed exactly
// once; a replayed callback fails with the expired-or-missing error.
func (m *Manager) Complete(ctx context.Context, userID uuid.UUID, state string, callback adapter.CallbackData) (*model.Connection, error) {
	raw, err := m.cache.Get(ctx, cache.StateKey(state))
	if err != nil {
		return nil, core.WrapError(core.ErrCacheUnavailable, err)
	}
	if raw == nil {
		return nil, core.ErrStateExpiredOrMissing
	}

	var hs handshakeState
	if err := json.Unmarshal(raw, &hs); err != nil {
		return nil, core.WrapError(core.ErrStateExpiredOrMissing, err)
	}
	if hs.UserID != userID.String() {
		return nil, core.ErrStateMismatch
	}

	brokerID := model.BrokerID(hs.BrokerID)
	ad, err := m.registry.Get(brokerID)
	if err != nil {
		return nil, err
	}

	conn, err := m.store.FindPendingConnection(ctx, userID, brokerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrNoPendingConnection
		}
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	// The pending row must be the one this handshake created; a superseded
	// handshake must not complete the row a newer Initiate put in its place.
	if conn.ID.String() != hs.ConnectionID {
		return nil, core.ErrNoPendingConnection
	}

	// Three-legged vendors need the request token secret, which only the
	// server holds. Merge it into the callback payload.
	if hs.RequestTokenSecret != "" {
		merged := adapter.CallbackData{}
		for k, v := range callback {
			merged[k] = v
		}
		merged["oauth_token_secret"] = hs.RequestTokenSecret
		if merged["oauth_token"] == "" {
			merged["oauth_token"] = hs.RequestToken
		}
		callback = merged
	}

	tokens, err := ad.ExchangeCallback(ctx, callback, hs.RedirectURI)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordHandshake(string(brokerID), "failed")
		}
		return nil, err
	}

	// Consume the state before activating so a replayed callback cannot
	// race a second exchange.
	m.cache.Delete(ctx, cache.StateKey(state))

	if err := m.storeTokens(ctx, userID, brokerID, tokens); err != nil {
		return nil, err
	}

	now := m.now()
	conn.Status = model.ConnectionActive
	conn.TokenRef = cache.TokenKey(userID.String(), string(brokerID))
	conn.ConnectedAt = &now
	conn.ExpiresAt = tokens.ExpiresAt
	conn.UpdatedAt = now
	if err := m.store.UpdateConnection(ctx, conn); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}

	m.enumerateAccounts(ctx, conn, ad, tokens)

	if m.metrics != nil {
		m.metrics.RecordHandshake(string(brokerID), "completed")
		m.metrics.ConnectionOpened()
	}
	m.log.Info("broker connection activated",
		zap.String("broker", string(brokerID)),
		zap.String("connection_id", conn.ID.String()))
	return conn, nil
}

// enumerateAccounts fetches and persists the vendor-side accounts for a
// freshly activated connection. Enumeration failure does not fail the
// handshake; accounts are re-enumerated on the next aggregation pass.
func (m *Manager) enumerateAccounts(ctx context.Context, conn *model.Connection, ad adapter.Adapter, tokens *model.TokenSet) {
	accounts, err := ad.GetAccounts(ctx, tokens)
	if err != nil {
		m.log.Warn("account enumeration failed",
			zap.String("broker", string(conn.BrokerID)),
			zap.Error(err))
		return
	}
	for _, acct := range accounts {
		row := &model.BrokerAccount{
			ID:                  uuid.New(),
			ConnectionID:        conn.ID,
			UserID:              conn.UserID,
			BrokerID:            conn.BrokerID,
			BrokerAccountID:     acct.AccountID,
			AccountNumberMasked: acct.AccountNumber,
			AccountType:         acct.AccountType,
			AccountName:         acct.AccountName,
			IsDefault:           acct.IsDefault,
			IncludeInAggregate:  true,
			CreatedAt:           m.now(),
		}
		if err := m.store.CreateAccount(ctx, row); err != nil {
			m.log.Warn("account persist failed",
				zap.String("broker", string(conn.BrokerID)),
				zap.Error(err))
		}
	}
}

// storeTokens writes the token bundle to the cache under the per-pair key,
// sealed with the credential codec when one is configured.
func (m *Manager) storeTokens(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID, tokens *model.TokenSet) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	if m.codec != nil {
		sealed, err := m.codec.Encrypt(string(raw))
		if err != nil {
			return err
		}
		raw = []byte(sealed)
	}
	if !m.cache.Set(ctx, cache.TokenKey(userID.String(), string(brokerID)), raw, cache.TTLToken) {
		return core.ErrCacheUnavailable
	}
	return nil
}

// GetTokens loads the cached token bundle for a (user, broker) pair. A miss
// means the bundle lapsed or the cache restarted; the user must reconnect or
// a refresh must succeed first.
func (m *Manager) GetTokens(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID) (*model.TokenSet, error) {
	raw, err := m.cache.Get(ctx, cache.TokenKey(userID.String(), string(brokerID)))
	if err != nil {
		return nil, core.WrapError(core.ErrCacheUnavailable, err)
	}
	if raw == nil {
		return nil, core.ErrTokensUnavailable
	}
	if m.codec != nil {
		plain, err := m.codec.Decrypt(string(raw))
		if err != nil {
			return nil, core.WrapError(core.ErrTokensUnavailable, err)
		}
		raw = []byte(plain)
	}
	var tokens model.TokenSet
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, core.WrapError(core.ErrTokensUnavailable, err)
	}
	return &tokens, nil
}

// Refresh obtains fresh credentials for an active connection and re-caches
// them. Refresh failure is not terminal: the connection stays active and a
// later attempt (or re-auth) can recover it, because vendors return
// transient errors from their token endpoints.
func (m *Manager) Refresh(ctx context.Context, userID uuid.UUID, connectionID uuid.UUID) (*model.Connection, error) {
	conn, err := m.store.GetConnection(ctx, connectionID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrConnectionNotFound
		}
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	if conn.Status != model.ConnectionActive {
		return nil, core.ErrNoActiveConnection
	}

	ad, err := m.registry.Get(conn.BrokerID)
	if err != nil {
		return nil, err
	}
	tokens, err := m.GetTokens(ctx, userID, conn.BrokerID)
	if err != nil {
		return nil, err
	}

	fresh, err := ad.RefreshToken(ctx, tokens)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordTokenRefresh(string(conn.BrokerID), "failed")
		}
		m.log.Warn("token refresh failed",
			zap.String("broker", string(conn.BrokerID)),
			zap.String("connection_id", conn.ID.String()),
			zap.Error(err))
		return nil, err
	}
	if err := m.storeTokens(ctx, userID, conn.BrokerID, fresh); err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.RecordTokenRefresh(string(conn.BrokerID), "ok")
	}

	now := m.now()
	conn.ExpiresAt = fresh.ExpiresAt
	conn.LastSyncAt = &now
	conn.UpdatedAt = now
	if err := m.store.UpdateConnection(ctx, conn); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return conn, nil
}

// Disconnect revokes a connection and drops its cached tokens. Disconnecting
// an already revoked connection is a no-op success.
func (m *Manager) Disconnect(ctx context.Context, userID uuid.UUID, connectionID uuid.UUID) error {
	conn, err := m.store.GetConnection(ctx, connectionID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.ErrConnectionNotFound
		}
		return core.WrapError(core.ErrStoreFailed, err)
	}
	if conn.Status == model.ConnectionRevoked {
		return nil
	}

	m.cache.Delete(ctx, cache.TokenKey(userID.String(), string(conn.BrokerID)))

	now := m.now()
	conn.Status = model.ConnectionRevoked
	conn.TokenRef = ""
	conn.UpdatedAt = now
	if err := m.store.UpdateConnection(ctx, conn); err != nil {
		return core.WrapError(core.ErrStoreFailed, err)
	}

	if m.metrics != nil {
		m.metrics.ConnectionClosed()
	}
	m.log.Info("broker connection revoked",
		zap.String("broker", string(conn.BrokerID)),
		zap.String("connection_id", conn.ID.String()))
	return nil
}

// List returns the user's non-revoked connections.
func (m *Manager) List(ctx context.Context, userID uuid.UUID) ([]model.Connection, error) {
	conns, err := m.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return conns, nil
}

// Get returns one connection scoped to the user.
func (m *Manager) Get(ctx context.Context, userID, connectionID uuid.UUID) (*model.Connection, error) {
	conn, err := m.store.GetConnection(ctx, connectionID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrConnectionNotFound
		}
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return conn, nil
}

// ListAccounts returns the user's broker accounts under active connections,
// optionally filtered by broker.
func (m *Manager) ListAccounts(ctx context.Context, userID uuid.UUID, brokerID model.BrokerID) ([]model.BrokerAccount, error) {
	accounts, err := m.store.ListAccounts(ctx, userID, brokerID)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return accounts, nil
}

// ActiveConnections filters the user's connections down to active ones.
func (m *Manager) ActiveConnections(ctx context.Context, userID uuid.UUID) ([]model.Connection, error) {
	conns, err := m.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := conns[:0]
	for _, c := range conns {
		if c.Status == model.ConnectionActive {
			active = append(active, c)
		}
	}
	return active, nil
}
