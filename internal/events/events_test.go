package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-todo-api/internal/models"
)

func runTestNATSServer(t *testing.T) *natssrv.Server {
	t.Helper()

	s, err := natssrv.NewServer(&natssrv.Options{Port: -1})
	require.NoError(t, err)
	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		t.Fatalf("nats server not ready")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestNATSPublisher_Publish(t *testing.T) {
	s := runTestNATSServer(t)

	sub, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 4)
	_, err = sub.ChanSubscribe("todos.>", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := NewNATSPublisher(s.ClientURL(), "")
	require.NoError(t, err)
	defer pub.Close()

	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ev := Event{
		Type: TypeCreated,
		Todo: models.Todo{ID: 7, Name: "Buy milk", CreatedAt: at, UpdatedAt: at},
		At:   at,
	}
	require.NoError(t, pub.Publish(context.Background(), ev))

	select {
	case msg := <-msgs:
		assert.Equal(t, "todos.todo.created", msg.Subject)

		var got Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, TypeCreated, got.Type)
		assert.Equal(t, 7, got.Todo.ID)
		assert.Equal(t, "Buy milk", got.Todo.Name)
		assert.True(t, at.Equal(got.At))
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestNATSPublisher_Subject(t *testing.T) {
	s := runTestNATSServer(t)

	pub, err := NewNATSPublisher(s.ClientURL(), "app.todos")
	require.NoError(t, err)
	defer pub.Close()

	assert.Equal(t, "app.todos.todo.done", pub.Subject(TypeDone))
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	s := runTestNATSServer(t)

	pub, err := NewNATSPublisher(s.ClientURL(), "todos")
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Publish(ctx, Event{Type: TypeUndone}), context.Canceled)
}

func TestNewNATSPublisher_Unreachable(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", "todos")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TypeCreated}))
	assert.NoError(t, p.Close())
}
