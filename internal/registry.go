package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var ErrRoomNotFound = errors.New("room not found")

// Registry 房間註冊表
//
// 行程內唯一的共享狀態：roomID → Room。
// 在 main 建立一次後以指標注入 Gateway，不使用套件層級的全域變數。
//
// 生命週期：
//   - 第一次有連線加入某個 roomID 時建立房間
//   - 連線斷開後，參與者歸零的房間立即刪除
//   - 沒有閒置逾時清理
//
// 鎖順序：先 Registry.mu，再 Room.Mu。
type Registry struct {
	rooms  map[string]*Room
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewRegistry 創建房間註冊表
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		logger: logger,
	}
}

// Join 加入房間，不存在就建立
//
// 持有 Registry 寫鎖，確保與 Leave 的刪除不會交錯
// （不會出現「剛加入就被當成空房間刪掉」的情況）。
func (m *Registry) Join(roomID, connID string, fn func(*Room)) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[roomID]
	if !exists {
		room = NewRoom(roomID)
		m.rooms[roomID] = room
		m.logger.Info("房間已創建", "room_id", roomID, "conn_id", connID)
	}

	room.Mu.Lock()
	defer room.Mu.Unlock()

	if room.AddParticipant(connID) {
		m.logger.Info("玩家加入房間",
			"room_id", roomID,
			"conn_id", connID,
			"participants", len(room.Participants))
	}

	snap := room.Snapshot()
	if fn != nil {
		fn(room)
	}
	return snap, !exists
}

// WithRoom 在持有鎖的情況下操作房間
//
// Registry 讀鎖 + Room 鎖：不同房間可並行，同一房間序列化。
// 房間不存在回傳 ErrRoomNotFound。
func (m *Registry) WithRoom(roomID string, fn func(*Room) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, exists := m.rooms[roomID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	room.Mu.Lock()
	defer room.Mu.Unlock()

	return fn(room)
}

// Leave 從所有房間移除連線，回傳被刪除的房間 ID
func (m *Registry) Leave(connID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted []string
	for roomID, room := range m.rooms {
		room.Mu.Lock()
		removed, remaining := room.RemoveParticipant(connID)
		room.Mu.Unlock()

		if !removed {
			continue
		}

		m.logger.Info("玩家離開房間",
			"room_id", roomID,
			"conn_id", connID,
			"participants", remaining)

		if remaining == 0 {
			delete(m.rooms, roomID)
			deleted = append(deleted, roomID)
			m.logger.Info("房間已移除", "room_id", roomID)
		}
	}

	sort.Strings(deleted)
	return deleted
}

// Get 取得房間快照
func (m *Registry) Get(roomID string) (Snapshot, error) {
	var snap Snapshot
	err := m.WithRoom(roomID, func(r *Room) error {
		snap = r.Snapshot()
		return nil
	})
	return snap, err
}

// Exists 房間是否存在
func (m *Registry) Exists(roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.rooms[roomID]
	return exists
}

// Len 房間數量
func (m *Registry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// RoomSummary 房間摘要
type RoomSummary struct {
	ID           string     `json:"room_id"`
	Participants int        `json:"participants"`
	Status       RoomStatus `json:"status"`
	Turn         Token      `json:"turn"`
	Moves        int        `json:"moves"`
}

// List 列出所有房間（依 ID 排序）
func (m *Registry) List() []RoomSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]RoomSummary, 0, len(m.rooms))
	for _, room := range m.rooms {
		room.Mu.Lock()
		result = append(result, RoomSummary{
			ID:           room.ID,
			Participants: len(room.Participants),
			Status:       room.Status(),
			Turn:         room.Turn,
			Moves:        room.Moves,
		})
		room.Mu.Unlock()
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Stats 獲取統計資訊
func (m *Registry) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statusCount := make(map[RoomStatus]int)
	totalPlayers := 0

	for _, room := range m.rooms {
		room.Mu.Lock()
		statusCount[room.Status()]++
		totalPlayers += len(room.Participants)
		room.Mu.Unlock()
	}

	return map[string]any{
		"total_rooms":   len(m.rooms),
		"total_players": totalPlayers,
		"by_status":     statusCount,
	}
}

// Close 清空所有房間（關閉服務時使用）
func (m *Registry) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.rooms)
	m.rooms = make(map[string]*Room)

	m.logger.Info("房間註冊表已關閉", "rooms", n)
}
