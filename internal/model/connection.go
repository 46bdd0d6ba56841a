package model

import (
	"time"

	"github.com/google/uuid"
)

// Connection is a (user, broker) pairing and its OAuth lifecycle state.
// TokenRef is an opaque handle to the cached token bundle; it is cleared
// when the connection is revoked.
type Connection struct {
	ID          uuid.UUID        `json:"id"`
	UserID      uuid.UUID        `json:"user_id"`
	BrokerID    BrokerID         `json:"broker_id"`
	Status      ConnectionStatus `json:"status"`
	TokenRef    string           `json:"-"`
	ConnectedAt *time.Time       `json:"connected_at,omitempty"`
	LastSyncAt  *time.Time       `json:"last_sync_at,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
	IsPrimary   bool             `json:"is_primary"`
	Nickname    string           `json:"nickname,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// BrokerAccount is a vendor-side account enumerated under a connection.
// Immutable after creation except for the user preference flags.
type BrokerAccount struct {
	ID                  uuid.UUID `json:"id"`
	ConnectionID        uuid.UUID `json:"connection_id"`
	UserID              uuid.UUID `json:"user_id"`
	BrokerID            BrokerID  `json:"broker_id"`
	BrokerAccountID     string    `json:"broker_account_id"`
	AccountNumberMasked string    `json:"account_number_masked"`
	AccountType         string    `json:"account_type"`
	AccountName         string    `json:"account_name"`
	IsDefault           bool      `json:"is_default"`
	IncludeInAggregate  bool      `json:"include_in_aggregate"`
	CreatedAt           time.Time `json:"created_at"`
}
