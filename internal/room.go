package internal

import (
	"errors"
	"slices"
	"sync"
	"time"
)

// 系統設計問題：
//   如何讓多個連線共享同一局棋的權威狀態，並保證每一步都合法？
//
// 核心挑戰：
//   1. 狀態管理：回合輪替、勝負判定後的終止狀態
//   2. 並發控制：同一房間的加入、落子、聊天、離開不能交錯
//   3. 資源回收：最後一個連線離開時房間必須立即刪除
//
// 設計方案：
//   ✅ 有限狀態機（FSM）- in_progress → won
//   ✅ Mutex - 由 Registry 統一取鎖（先 Registry 再 Room）
//   ✅ Snapshot - 廣播前深拷貝，避免序列化時讀到被修改的狀態

// RoomStatus 房間狀態
//
// 有限狀態機設計：
//
//	in_progress → won
//
// 狀態轉換規則：
//   - in_progress → won：落子後形成四子連線
//   - won 為終止狀態，之後的落子一律拒絕（ErrGameOver）
//
// 棋盤下滿但無人獲勝時不另設和局狀態，仍為 in_progress，
// 之後的落子都會因為欄位已滿而被忽略。
type RoomStatus string

const (
	StatusInProgress RoomStatus = "in_progress"
	StatusWon        RoomStatus = "won"
)

var ErrGameOver = errors.New("game over")

// ChatMessage 聊天訊息
//
// JSON 欄位沿用前端既有格式（player / message）。
type ChatMessage struct {
	Author string `json:"player"`
	Text   string `json:"message"`
}

// Outcome 勝負結果
type Outcome struct {
	Winner Token      `json:"winner"`
	Cells  []Position `json:"winningPositions"`
}

// MoveResult 一次成功落子的結果
type MoveResult struct {
	Player Token
	Row    int
	Col    int
	Won    bool
}

// Room 一局遊戲
//
// 系統設計考量：
//
//  1. 並發控制（Mutex）：
//     Room 本身的方法不取鎖，呼叫端必須持有 Mu。
//     正式流程一律經過 Registry.WithRoom / Registry.Join，
//     由 Registry 依「先 Registry 再 Room」的順序取鎖，避免死鎖。
//
//  2. 參與者（Participants）：
//     依加入順序保存的連線 ID 集合，只用來做成員管理，
//     不決定誰操作 P1 / P2。
//
//  3. 回合（Turn）：
//     只在「成功落子且沒有獲勝」時輪替；獲勝後凍結。
//
//  4. 聊天（Chat）：
//     只增不減，生命週期與房間相同。
type Room struct {
	ID           string
	Participants []string
	Board        Board
	Turn         Token
	Outcome      *Outcome
	Chat         []ChatMessage
	Moves        int
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Mu sync.Mutex `json:"-"`
}

// NewRoom 創建新房間：空棋盤、P1 先手、無聊天、無結果
func NewRoom(id string) *Room {
	now := time.Now()
	return &Room{
		ID:           id,
		Participants: []string{},
		Turn:         P1,
		Chat:         []ChatMessage{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Status 目前狀態
func (r *Room) Status() RoomStatus {
	if r.Outcome != nil {
		return StatusWon
	}
	return StatusInProgress
}

// AddParticipant 加入連線
//
// 同一連線重複加入不會重複記錄（回傳 false），
// 也不會重置棋盤或回合。
func (r *Room) AddParticipant(connID string) bool {
	if slices.Contains(r.Participants, connID) {
		return false
	}
	r.Participants = append(r.Participants, connID)
	r.UpdatedAt = time.Now()
	return true
}

// RemoveParticipant 移除連線，回傳是否有移除以及剩餘人數
func (r *Room) RemoveParticipant(connID string) (bool, int) {
	idx := slices.Index(r.Participants, connID)
	if idx < 0 {
		return false, len(r.Participants)
	}
	r.Participants = slices.Delete(r.Participants, idx, idx+1)
	r.UpdatedAt = time.Now()
	return true, len(r.Participants)
}

// HasParticipant 連線是否在房間內
func (r *Room) HasParticipant(connID string) bool {
	return slices.Contains(r.Participants, connID)
}

// Play 以目前回合代號在 col 欄落子
//
// 流程：
//  1. 已分出勝負 → ErrGameOver
//  2. Board.Drop（超出範圍 / 欄位已滿 → 原樣回傳錯誤，狀態不變）
//  3. FindWin 檢查剛落子的一方
//     - 有連線 → 寫入 Outcome，回合凍結
//     - 沒有 → 回合輪替
func (r *Room) Play(col int) (MoveResult, error) {
	if r.Outcome != nil {
		return MoveResult{}, ErrGameOver
	}

	mover := r.Turn
	row, err := r.Board.Drop(col, mover)
	if err != nil {
		return MoveResult{}, err
	}

	r.Moves++
	r.UpdatedAt = time.Now()

	result := MoveResult{Player: mover, Row: row, Col: col}
	if cells := FindWin(&r.Board, mover); cells != nil {
		r.Outcome = &Outcome{Winner: mover, Cells: cells}
		result.Won = true
		return result, nil
	}

	r.Turn = mover.Opponent()
	return result, nil
}

// AppendChat 新增聊天訊息
func (r *Room) AppendChat(author, text string) ChatMessage {
	msg := ChatMessage{Author: author, Text: text}
	r.Chat = append(r.Chat, msg)
	r.UpdatedAt = time.Now()
	return msg
}

// Snapshot 房間完整狀態（update_game 的內容）
//
// JSON 欄位沿用前端既有格式：
// players / grid / currentPlayer / chat / winner / winningPositions。
type Snapshot struct {
	ID               string        `json:"gameId"`
	Players          []string      `json:"players"`
	Grid             Board         `json:"grid"`
	CurrentPlayer    Token         `json:"currentPlayer"`
	Chat             []ChatMessage `json:"chat"`
	Winner           Token         `json:"winner,omitempty"`
	WinningPositions []Position    `json:"winningPositions,omitempty"`
	Status           RoomStatus    `json:"status"`
}

// Snapshot 深拷貝目前狀態
func (r *Room) Snapshot() Snapshot {
	snap := Snapshot{
		ID:            r.ID,
		Players:       slices.Clone(r.Participants),
		Grid:          r.Board, // 陣列為值拷貝
		CurrentPlayer: r.Turn,
		Chat:          slices.Clone(r.Chat),
		Status:        r.Status(),
	}
	if r.Outcome != nil {
		snap.Winner = r.Outcome.Winner
		snap.WinningPositions = slices.Clone(r.Outcome.Cells)
	}
	return snap
}
