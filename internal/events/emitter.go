// Package events publishes draw lifecycle events to NATS for collaborating
// services (ticketing, payments, notifications).
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	TypeDrawCompleted = "draw.completed"
	TypeDrawVerified  = "draw.verified"
	TypeDrawCancelled = "draw.cancelled"
)

type DrawEvent struct {
	Type      string `json:"type"`
	LotteryID string `json:"lottery_id"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type Emitter struct {
	conn          *nats.Conn
	subjectPrefix string
}

func NewEmitter(natsURL, subjectPrefix string) (*Emitter, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Emitter{
		conn:          conn,
		subjectPrefix: subjectPrefix,
	}, nil
}

func (e *Emitter) Emit(eventType, lotteryID string, data any) error {
	payload, err := json.Marshal(DrawEvent{
		Type:      eventType,
		LotteryID: lotteryID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return e.conn.Publish(e.subjectPrefix+"."+eventType, payload)
}

func (e *Emitter) Close() {
	if e.conn != nil {
		e.conn.Close()
	}
}
