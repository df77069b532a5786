package journal

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/ignite/internal/ir"
)

// Encode serializes a message body. The type is stored separately.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return data, nil
}

// Decode reconstructs a message from its type and body.
func Decode(t Type, body []byte) (Message, error) {
	var m Message
	switch t {
	case TypeDeploymentInitialized:
		m = &DeploymentInitialized{}
	case TypeExecutionStarted:
		m = &ExecutionStarted{}
	case TypeRequestBuilt:
		m = &RequestBuilt{}
	case TypeTransactionSent:
		m = &TransactionSent{}
	case TypeTransactionConfirmed:
		m = &TransactionConfirmed{}
	case TypeTransactionDropped:
		m = &TransactionDropped{}
	case TypeFutureCompleted:
		m = &FutureCompleted{}
	case TypeFutureFailed:
		m = &FutureFailed{}
	case TypeFutureReset:
		m = &FutureReset{}
	default:
		return nil, fmt.Errorf("unknown message type %q", t)
	}
	if err := json.Unmarshal(body, m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return m, nil
}

type futureCompletedJSON FutureCompleted

// MarshalJSON implements json.Marshaler.
func (m FutureCompleted) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		futureCompletedJSON
		Result ir.Raw `json:"result"`
	}{futureCompletedJSON(m), ir.Raw{Value: m.Result}})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *FutureCompleted) UnmarshalJSON(data []byte) error {
	var aux struct {
		futureCompletedJSON
		Result ir.Raw `json:"result"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = FutureCompleted(aux.futureCompletedJSON)
	m.Result = aux.Result.Value
	return nil
}
