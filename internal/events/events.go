// Package events はTodoの変更イベントを配信します。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"go-todo-api/internal/models"
)

// イベント種別
const (
	TypeCreated = "todo.created"
	TypeDone    = "todo.done"
	TypeUndone  = "todo.undone"
)

// Event は配信されるTodoイベントです。
type Event struct {
	Type string      `json:"type"`
	Todo models.Todo `json:"todo"`
	At   time.Time   `json:"at"`
}

// Publisher はイベントの配信先です。
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop は何もしないPublisherです。NATSが設定されていない場合に使います。
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// NATSPublisher はNATSにイベントを配信します。サブジェクトは <prefix>.<type> です。
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher はNATSに接続し、新しいNATSPublisherを作成します。
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = "todos"
	}
	nc, err := nats.Connect(url, func(o *nats.Options) error {
		o.Name = "todo-api"
		return nil
	}, nats.Timeout(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("could not connect to nats: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

// Subject はイベント種別の配信先サブジェクトを返します。
func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish はイベントをJSONにしてNATSに送ります。
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("could not encode event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(ev.Type), data); err != nil {
		return fmt.Errorf("could not publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close は送信待ちのメッセージをフラッシュして接続を閉じます。
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
