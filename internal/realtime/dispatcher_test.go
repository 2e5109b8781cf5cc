package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func decodeQueued(t *testing.T, c *Conn) []OrderEventMessage {
	t.Helper()
	var out []OrderEventMessage
	for _, data := range c.outbox.drain() {
		var msg OrderEventMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		out = append(out, msg)
	}
	return out
}

func seqOf(t *testing.T, msg OrderEventMessage) int {
	t.Helper()
	var p struct {
		Seq int `json:"seq"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p.Seq
}

func TestDispatcher_EmptyRoomIsSilentNoop(t *testing.T) {
	d := NewDispatcher(NewRegistry(allowAll{}), discardLogger())

	report, err := d.Publish("ORD-1", KindStatusChanged, map[string]string{"status": "confirmed"})
	require.NoError(t, err)
	require.Equal(t, DeliveryReport{OrderID: "ORD-1"}, report)
	require.Equal(t, uint64(1), d.Stats().Published)
}

func TestDispatcher_RejectsEmptyOrderID(t *testing.T) {
	d := NewDispatcher(NewRegistry(allowAll{}), discardLogger())

	_, err := d.Publish("", KindStatusChanged, nil)
	require.ErrorIs(t, err, ErrInvalidOrderID)
}

func TestDispatcher_UnencodablePayload(t *testing.T) {
	d := NewDispatcher(NewRegistry(allowAll{}), discardLogger())

	_, err := d.Publish("ORD-1", KindStatusChanged, map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	require.Equal(t, uint64(0), d.Stats().Published)
}

func TestDispatcher_DeliversWireFormat(t *testing.T) {
	registry := NewRegistry(allowAll{})
	d := NewDispatcher(registry, discardLogger())
	emitted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return emitted }

	c, _ := newTestConn(t, registry, "c1", customerC, testConfig())
	require.NoError(t, registry.Join(context.Background(), c, "ORD-1"))

	report, err := d.Publish("ORD-1", KindStatusChanged, map[string]string{"status": "arriving"})
	require.NoError(t, err)
	require.Equal(t, 1, report.Recipients)

	msgs := decodeQueued(t, c)
	require.Len(t, msgs, 1)
	require.Equal(t, TypeOrderEvent, msgs[0].Type)
	require.Equal(t, "ORD-1", msgs[0].OrderID)
	require.Equal(t, KindStatusChanged, msgs[0].Kind)
	require.JSONEq(t, `{"status":"arriving"}`, string(msgs[0].Payload))
	require.True(t, emitted.Equal(msgs[0].EmittedAt))
}

func TestDispatcher_NoCrossOrderLeakage(t *testing.T) {
	registry := NewRegistry(allowAll{})
	d := NewDispatcher(registry, discardLogger())
	c1, _ := newTestConn(t, registry, "c1", customerC, testConfig())
	c2, _ := newTestConn(t, registry, "c2", customerD, testConfig())
	require.NoError(t, registry.Join(context.Background(), c1, "ORD-1"))
	require.NoError(t, registry.Join(context.Background(), c2, "ORD-2"))

	_, err := d.Publish("ORD-1", KindStatusChanged, nil)
	require.NoError(t, err)

	require.Len(t, decodeQueued(t, c1), 1)
	require.Empty(t, decodeQueued(t, c2))
}

func TestDispatcher_LateJoinerGetsNoReplay(t *testing.T) {
	registry := NewRegistry(allowAll{})
	d := NewDispatcher(registry, discardLogger())
	early, _ := newTestConn(t, registry, "early", customerC, testConfig())
	late, _ := newTestConn(t, registry, "late", partnerP, testConfig())

	require.NoError(t, registry.Join(context.Background(), early, "ORD-1"))
	_, err := d.Publish("ORD-1", KindStatusChanged, map[string]int{"seq": 1})
	require.NoError(t, err)

	require.NoError(t, registry.Join(context.Background(), late, "ORD-1"))
	_, err = d.Publish("ORD-1", KindStatusChanged, map[string]int{"seq": 2})
	require.NoError(t, err)

	earlyMsgs := decodeQueued(t, early)
	require.Len(t, earlyMsgs, 2)
	lateMsgs := decodeQueued(t, late)
	require.Len(t, lateMsgs, 1)
	require.Equal(t, 2, seqOf(t, lateMsgs[0]))
}

func TestDispatcher_PreservesPublishOrder(t *testing.T) {
	registry := NewRegistry(allowAll{})
	d := NewDispatcher(registry, discardLogger())
	cfg := testConfig()
	cfg.QueueSize = 200

	members := make([]*Conn, 3)
	for i := range members {
		members[i], _ = newTestConn(t, registry, fmt.Sprintf("c%d", i), adminA, cfg)
		require.NoError(t, registry.Join(context.Background(), members[i], "ORD-1"))
	}

	for seq := 1; seq <= 100; seq++ {
		_, err := d.Publish("ORD-1", KindLocationUpdated, map[string]int{"seq": seq})
		require.NoError(t, err)
	}

	for _, m := range members {
		msgs := decodeQueued(t, m)
		require.Len(t, msgs, 100)
		for i, msg := range msgs {
			require.Equal(t, i+1, seqOf(t, msg))
		}
	}
}

// A member whose queue is saturated keeps only the newest capacity events
// and the drop counter accounts for the rest.
func TestDispatcher_SaturatedQueueKeepsNewest(t *testing.T) {
	registry := NewRegistry(allowAll{})
	d := NewDispatcher(registry, discardLogger())
	cfg := testConfig()
	cfg.QueueSize = 4

	e, _ := newTestConn(t, registry, "e", customerC, cfg)
	require.NoError(t, registry.Join(context.Background(), e, "ORD-2"))

	const n = 10
	totalDropped := 0
	for seq := 1; seq <= n; seq++ {
		report, err := d.Publish("ORD-2", KindLocationUpdated, map[string]int{"seq": seq})
		require.NoError(t, err)
		require.Equal(t, 1, report.Recipients)
		totalDropped += report.Dropped
	}

	require.Equal(t, n-cfg.QueueSize, totalDropped)
	require.Equal(t, uint64(n-cfg.QueueSize), e.Dropped())
	require.Equal(t, uint64(n-cfg.QueueSize), d.Stats().Dropped)

	msgs := decodeQueued(t, e)
	require.Len(t, msgs, cfg.QueueSize)
	for i, msg := range msgs {
		require.Equal(t, n-cfg.QueueSize+i+1, seqOf(t, msg))
	}
}

func TestDispatcher_ClosedMemberDoesNotAbortOthers(t *testing.T) {
	registry := NewRegistry(allowAll{})
	d := NewDispatcher(registry, discardLogger())
	alive, _ := newTestConn(t, registry, "alive", customerC, testConfig())
	closing, _ := newTestConn(t, registry, "closing", partnerP, testConfig())
	require.NoError(t, registry.Join(context.Background(), alive, "ORD-1"))
	require.NoError(t, registry.Join(context.Background(), closing, "ORD-1"))

	// Close the outbox only, as if teardown were midway between the
	// snapshot and registry removal.
	closing.outbox.close()

	report, err := d.Publish("ORD-1", KindStatusChanged, nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Recipients)
	require.Equal(t, 1, report.Skipped)
	require.Len(t, decodeQueued(t, alive), 1)
}

func TestDispatcher_DisconnectedMemberReceivesNothing(t *testing.T) {
	registry := NewRegistry(allowAll{})
	d := NewDispatcher(registry, discardLogger())
	e, _ := newTestConn(t, registry, "e", customerC, testConfig())
	require.NoError(t, registry.Join(context.Background(), e, "ORD-2"))

	e.Close(CloseGoingAway, "")

	report, err := d.Publish("ORD-2", KindStatusChanged, nil)
	require.NoError(t, err)
	require.Equal(t, 0, report.Recipients)
	require.False(t, registry.RoomExists("ORD-2"))
	require.Empty(t, registry.Members("ORD-2"))
}
