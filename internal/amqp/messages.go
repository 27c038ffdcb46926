package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ImportCompletedMessage announces a committed import batch. Consumers load
// the batch from storage by id; the message carries no transaction data.
type ImportCompletedMessage struct {
	BatchID   string    `json:"batch_id"`
	AccountID string    `json:"account_id"`
	Accepted  int       `json:"accepted"`
	Timestamp time.Time `json:"timestamp"`
}

func NewImportCompletedMessage(batchID, accountID string, accepted int) *ImportCompletedMessage {
	return &ImportCompletedMessage{
		BatchID:   batchID,
		AccountID: accountID,
		Accepted:  accepted,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ImportCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ImportCompletedMessageFromJSON decodes and sanity-checks a message body.
func ImportCompletedMessageFromJSON(data []byte) (*ImportCompletedMessage, error) {
	var msg ImportCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.BatchID == "" || msg.AccountID == "" {
		return nil, errors.New("import message missing batch_id or account_id")
	}
	return &msg, nil
}
