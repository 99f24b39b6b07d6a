package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nikhil/discuss/internal/models"
)

// Notification types understood by the web client.
const (
	TypeRecordInsert = "mail.record/insert"
	TypeMemberSeen   = "discuss.channel.member/seen"
	TypeTypingStatus = "discuss.channel.member/typing_status"
	TypeFoldState    = "discuss.Thread/fold_state"
	TypeNewMessage   = "discuss.channel/new_message"
	redisBusChannel  = "discuss:bus"
)

// Bus delivers real-time notifications to the sessions listening to a target.
type Bus interface {
	SendOne(ctx context.Context, target models.Target, notifType string, payload interface{}) error
}

// Frame is what a websocket client receives.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// envelope carries a frame between instances.
type envelope struct {
	Model string `json:"model"`
	ID    int64  `json:"id"`
	Frame Frame  `json:"frame"`
}

func encodeFrame(notifType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", notifType, err)
	}
	return json.Marshal(Frame{Type: notifType, Payload: raw})
}

// Local delivers notifications to the websocket clients of this process.
type Local struct {
	hub *models.Hub
}

// NewLocal creates a bus on top of the in-process hub.
func NewLocal(hub *models.Hub) *Local {
	return &Local{hub: hub}
}

// SendOne publishes the notification to the hub.
func (b *Local) SendOne(_ context.Context, target models.Target, notifType string, payload interface{}) error {
	frame, err := encodeFrame(notifType, payload)
	if err != nil {
		return err
	}
	b.hub.Publish(target, frame)
	return nil
}
