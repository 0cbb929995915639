package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tableservice-platform/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(channel, body string) Message {
	return Message{Channel: channel, Payload: []byte(body)}
}

func TestHub_FanOutPerChannel(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe("table:T1")
	b := h.Subscribe("table:T1")
	other := h.Subscribe("table:T2")
	defer a.Close()
	defer b.Close()
	defer other.Close()

	require.NoError(t, h.Publish(context.Background(), msg("table:T1", "x")))

	assert.Equal(t, "x", string((<-a.C).Payload))
	assert.Equal(t, "x", string((<-b.C).Payload))
	select {
	case m := <-other.C:
		t.Fatalf("unexpected message on table:T2: %s", m.Payload)
	default:
	}
}

func TestHub_DropsLaggingSubscriber(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := NewHub(1)
	h.Metrics = m

	slow := h.Subscribe("waiter:S1")
	fast := h.Subscribe("waiter:S1")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Subscribers))

	require.NoError(t, h.Publish(context.Background(), msg("waiter:S1", "1")))
	<-fast.C

	err := h.Publish(context.Background(), msg("waiter:S1", "2"))
	require.Error(t, err)
	assert.Equal(t, 1, h.Subscribers("waiter:S1"))

	// the dropped subscriber still sees what was buffered, then a closed channel
	assert.Equal(t, "1", string((<-slow.C).Payload))
	_, open := <-slow.C
	assert.False(t, open)

	assert.Equal(t, "2", string((<-fast.C).Payload))
	fast.Close()
	fast.Close()
	assert.Equal(t, 0, h.Subscribers("waiter:S1"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Subscribers))
}

func TestHub_ServeWS(t *testing.T) {
	h := NewHub(8)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.ServeWS(w, r, "business:B1", log)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return h.Subscribers("business:B1") == 1 }, time.Second, 5*time.Millisecond)

	ev := CallEvent(ackedCall(), t0)
	payload, _ := json.Marshal(ev)
	require.NoError(t, h.Publish(context.Background(), Message{Channel: "business:B1", Event: ev, Payload: payload}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, EventCallAcknowledged, got.Type)
	assert.Equal(t, "c1", got.Call.CallID)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Subscribers("business:B1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
