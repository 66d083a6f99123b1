package internal_test

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koopa0/system-design/connect-four/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStress_ConcurrentJoinLeave 測試併發加入和斷線
func TestStress_ConcurrentJoinLeave(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	registry := internal.NewRegistry(testLogger())

	const (
		numConns = 100
		numRooms = 10
	)

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < numConns; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			connID := fmt.Sprintf("conn-%d", id)
			for j := 0; j < 5; j++ {
				registry.Join(fmt.Sprintf("room-%d", rand.Intn(numRooms)), connID, nil)
			}
			registry.Leave(connID)
		}(i)
	}

	wg.Wait()

	t.Logf("加入/離開壓力測試耗時: %v", time.Since(start))

	// 所有連線都離開了，不能留下空房間
	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, 0, registry.Stats()["total_players"])
}

// TestStress_ConcurrentMoves 測試同一房間併發落子
func TestStress_ConcurrentMoves(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	out := newRecorder()
	registry := internal.NewRegistry(testLogger())
	gateway := internal.NewGateway(registry, out, testLogger())

	require.NoError(t, gateway.Dispatch(internal.Command{Kind: internal.CommandJoin, ConnID: "x", RoomID: "A"}))
	require.NoError(t, gateway.Dispatch(internal.Command{Kind: internal.CommandJoin, ConnID: "y", RoomID: "A"}))

	const numGoroutines = 50

	var (
		wg        sync.WaitGroup
		successes int32
	)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				err := gateway.Dispatch(internal.Command{
					Kind:   internal.CommandMove,
					ConnID: "x",
					RoomID: "A",
					Column: (id + j) % internal.Cols,
				})
				if err == nil {
					atomic.AddInt32(&successes, 1)
				}
			}
		}(i)
	}

	wg.Wait()

	snap, err := registry.Get("A")
	require.NoError(t, err)

	// 每次成功的落子剛好對應一個棋子與一次 update_game
	assert.Equal(t, int(successes), countPieces(snap.Grid))
	assert.Len(t, out.events(internal.EventUpdateGame), 2+int(successes))

	// 快照順序與落子順序一致：棋子數逐一遞增
	updates := out.events(internal.EventUpdateGame)
	for i, ev := range updates[2:] {
		assert.Equal(t, i+1, countPieces(ev.payload.(internal.Snapshot).Grid))
	}
}

func countPieces(b internal.Board) int {
	n := 0
	for r := 0; r < internal.Rows; r++ {
		for c := 0; c < internal.Cols; c++ {
			if b.At(r, c) != internal.NoToken {
				n++
			}
		}
	}
	return n
}
