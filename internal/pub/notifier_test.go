package pub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"escrow-service/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsPair registers the server side of a fresh websocket under userID and
// returns the client side.
func wsPair(t *testing.T, n *Notifier, userID string) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	serverSide := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n.RegisterConnection(userID, conn)
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-serverSide:
		return conn, client
	case <-time.After(5 * time.Second):
		t.Fatal("websocket was not registered")
		return nil, nil
	}
}

func readMessage(t *testing.T, client *websocket.Conn) WSMessage {
	t.Helper()
	var msg WSMessage
	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, client.ReadJSON(&msg))
	return msg
}

func TestNotifier_DeliverReachesEveryParticipant(t *testing.T) {
	n := NewNotifier(nil)
	_, buyerClient := wsPair(t, n, "buyer")
	_, sellerClient := wsPair(t, n, "seller")

	require.NoError(t, n.Deliver(context.Background(), testEvent(domain.EventEscrowFunded)))

	assert.Equal(t, string(domain.EventEscrowFunded), readMessage(t, buyerClient).Type)
	assert.Equal(t, string(domain.EventEscrowFunded), readMessage(t, sellerClient).Type)
}

func TestNotifier_SlowWriteDoesNotBlockRegistry(t *testing.T) {
	n := NewNotifier(nil)
	conn, client := wsPair(t, n, "u1")
	other, _ := wsPair(t, n, "u2")

	// park the connection mid-write
	stuck := n.snapshot("u1")
	require.Len(t, stuck, 1)
	stuck[0].wmu.Lock()

	sent := make(chan struct{})
	go func() {
		n.Send("u1", WSMessage{Type: "ping"})
		close(sent)
	}()

	registry := make(chan int, 1)
	go func() {
		n.RegisterConnection("u3", other)
		registry <- n.Connections("u1") + n.Connections("u3")
	}()
	select {
	case total := <-registry:
		assert.Equal(t, 2, total)
	case <-time.After(2 * time.Second):
		t.Fatal("registry blocked behind a pending write")
	}

	select {
	case <-sent:
		t.Fatal("send finished while the connection was held")
	default:
	}
	stuck[0].wmu.Unlock()
	<-sent
	assert.Equal(t, "ping", readMessage(t, client).Type)
	assert.Equal(t, 1, n.Connections("u1"))

	n.UnregisterConnection("u1", conn)
	assert.Zero(t, n.Connections("u1"))
}

func TestNotifier_ConcurrentSendsAndFailedWritesDrop(t *testing.T) {
	n := NewNotifier(nil)
	conn, client := wsPair(t, n, "u1")

	const senders = 8
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Send("u1", WSMessage{Type: "tick"})
		}()
	}
	wg.Wait()
	for i := 0; i < senders; i++ {
		assert.Equal(t, "tick", readMessage(t, client).Type)
	}

	// a closed socket fails the next write and is dropped
	require.NoError(t, conn.Close())
	n.Send("u1", WSMessage{Type: "tick"})
	assert.Zero(t, n.Connections("u1"))
}
