package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"ledger/internal/core"
)

// SyncRequestMessage asks the worker to import transactions for one account.
type SyncRequestMessage struct {
	AccountID int64               `json:"accountId"`
	Kind      core.ConnectionKind `json:"connectionType"`
	Trigger   string              `json:"trigger"`
	Timestamp time.Time           `json:"timestamp"`
}

func NewSyncRequestMessage(accountID int64, kind core.ConnectionKind, trigger string) *SyncRequestMessage {
	return &SyncRequestMessage{
		AccountID: accountID,
		Kind:      kind,
		Trigger:   trigger,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SyncRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncRequestMessageFromJSON decodes and checks a sync request.
func SyncRequestMessageFromJSON(data []byte) (*SyncRequestMessage, error) {
	var msg SyncRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.AccountID <= 0 {
		return nil, fmt.Errorf("sync request without account id")
	}
	if !msg.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownKind, msg.Kind)
	}
	return &msg, nil
}

func marshalSignal(sig core.Signal) ([]byte, error) {
	return json.Marshal(sig)
}
