package workermanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hodei/orchestrator/pkg/wireproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RegisterAndConnectedWorkers(t *testing.T) {
	m := New(time.Minute, nil)
	m.Register("w1", "pool-1")
	m.Register("w2", "pool-1")
	assert.ElementsMatch(t, []string{"w1", "w2"}, m.ConnectedWorkers())
}

func TestManager_SendTo_FalseWhenDisconnected(t *testing.T) {
	m := New(time.Minute, nil)
	assert.False(t, m.SendTo("ghost", &wireproto.OrchestratorMessage{}))
}

func TestManager_SendTo_DeliversToOutboundQueue(t *testing.T) {
	m := New(time.Minute, nil)
	s := m.Register("w1", "pool-1")
	msg := &wireproto.OrchestratorMessage{Kind: wireproto.KindShutdownSignal}
	require.True(t, m.SendTo("w1", msg))
	select {
	case got := <-s.Outbound():
		assert.Equal(t, msg, got)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestManager_Broadcast_ReachesAllConnected(t *testing.T) {
	m := New(time.Minute, nil)
	m.Register("w1", "pool-1")
	m.Register("w2", "pool-1")
	sent := m.Broadcast(&wireproto.OrchestratorMessage{Kind: wireproto.KindShutdownSignal})
	assert.ElementsMatch(t, []string{"w1", "w2"}, sent)
}

func TestManager_Disconnect_RemovesSession(t *testing.T) {
	m := New(time.Minute, nil)
	m.Register("w1", "pool-1")
	m.Disconnect("w1")
	assert.Empty(t, m.ConnectedWorkers())
	assert.False(t, m.SendTo("w1", &wireproto.OrchestratorMessage{}))
}

func TestManager_Dispatch_DemultiplexesByKind(t *testing.T) {
	m := New(time.Minute, nil)
	m.Register("w1", "pool-1")

	var mu sync.Mutex
	var received []string
	m.OnMessage(wireproto.KindStatusUpdate, func(workerID string, msg *wireproto.WorkerMessage) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, workerID)
	})
	m.OnMessage(wireproto.KindHeartbeat, func(workerID string, msg *wireproto.WorkerMessage) {
		t.Fatal("heartbeat handler must not fire for status_update")
	})

	m.Dispatch("w1", &wireproto.WorkerMessage{Kind: wireproto.KindStatusUpdate})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"w1"}, received)
}

func TestManager_Dispatch_HeartbeatRefreshesLiveness(t *testing.T) {
	m := New(90*time.Second, nil)
	s := m.Register("w1", "pool-1")
	s.LastHeartbeat = time.Now().Add(-80 * time.Second)
	m.Dispatch("w1", &wireproto.WorkerMessage{Kind: wireproto.KindHeartbeat})
	assert.True(t, s.isHealthy(time.Now(), 90*time.Second))
}

func TestManager_ReapLoop_ReclaimsTimedOutWorker(t *testing.T) {
	var lostMu sync.Mutex
	var lost []string
	m := New(50*time.Millisecond, func(workerID string) {
		lostMu.Lock()
		defer lostMu.Unlock()
		lost = append(lost, workerID)
	})
	s := m.Register("w1", "pool-1")
	s.LastHeartbeat = time.Now().Add(-time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go m.ReapLoop(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		lostMu.Lock()
		defer lostMu.Unlock()
		return len(lost) == 1 && lost[0] == "w1"
	}, 500*time.Millisecond, 10*time.Millisecond)
	assert.Empty(t, m.ConnectedWorkers())
}
