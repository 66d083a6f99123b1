package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// 傳輸層事件名稱（與前端既有協定相同）
const (
	EventJoinGame       = "join_game"
	EventPlayMove       = "play_move"
	EventSendMessage    = "send_message"
	EventUpdateGame     = "update_game"
	EventReceiveMessage = "receive_message"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// CommandKind 指令種類
type CommandKind int

const (
	CommandJoin CommandKind = iota + 1
	CommandMove
	CommandChat
	CommandDisconnect
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoin:
		return "join"
	case CommandMove:
		return "move"
	case CommandChat:
		return "chat"
	case CommandDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command 由傳輸事件轉換而來的指令
type Command struct {
	Kind   CommandKind
	ConnID string
	RoomID string
	Column int
	Author string
	Text   string
}

// Broadcaster 對外廣播的出口
//
// 由 WebSocketHub 實作；測試時可替換成記錄用的假物件。
// Broadcast 必須是非阻塞的：單一訂閱者送不出去不能拖住狀態變更。
type Broadcaster interface {
	Subscribe(roomID, connID string)
	Unsubscribe(connID string)
	Broadcast(roomID, event string, payload any)
}

// Gateway 把傳輸事件轉成 Registry / Room 操作，再把結果廣播出去
//
// 所有指令都經過 Dispatch 同步處理；
// 廣播在 Room 鎖內送出，因此同一房間的快照順序與狀態變更順序一致。
type Gateway struct {
	registry *Registry
	out      Broadcaster
	logger   *slog.Logger
}

// NewGateway 創建 Gateway
func NewGateway(registry *Registry, out Broadcaster, logger *slog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		out:      out,
		logger:   logger,
	}
}

// Dispatch 處理一個指令
//
// 回傳的錯誤只用於記錄與測試，不會回傳給客戶端：
// 不合法的操作不改變狀態、不廣播，直接忽略。
func (g *Gateway) Dispatch(cmd Command) error {
	var err error
	switch cmd.Kind {
	case CommandJoin:
		err = g.join(cmd)
	case CommandMove:
		err = g.move(cmd)
	case CommandChat:
		err = g.chat(cmd)
	case CommandDisconnect:
		g.disconnect(cmd)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownEvent, cmd.Kind)
	}

	if err != nil {
		g.logger.Debug("忽略無效操作",
			"kind", cmd.Kind.String(),
			"room_id", cmd.RoomID,
			"conn_id", cmd.ConnID,
			"error", err)
	}
	return err
}

func (g *Gateway) join(cmd Command) error {
	if cmd.RoomID == "" {
		return fmt.Errorf("%w: empty room id", ErrInvalidPayload)
	}

	g.registry.Join(cmd.RoomID, cmd.ConnID, func(r *Room) {
		g.out.Subscribe(cmd.RoomID, cmd.ConnID)
		g.out.Broadcast(cmd.RoomID, EventUpdateGame, r.Snapshot())
	})
	return nil
}

func (g *Gateway) move(cmd Command) error {
	return g.registry.WithRoom(cmd.RoomID, func(r *Room) error {
		result, err := r.Play(cmd.Column)
		if err != nil {
			return fmt.Errorf("play column %d: %w", cmd.Column, err)
		}

		if result.Won {
			g.logger.Info("遊戲結束",
				"room_id", cmd.RoomID,
				"winner", result.Player,
				"moves", r.Moves)
		}

		g.out.Broadcast(cmd.RoomID, EventUpdateGame, r.Snapshot())
		return nil
	})
}

func (g *Gateway) chat(cmd Command) error {
	return g.registry.WithRoom(cmd.RoomID, func(r *Room) error {
		msg := r.AppendChat(cmd.Author, cmd.Text)
		g.out.Broadcast(cmd.RoomID, EventReceiveMessage, msg)
		return nil
	})
}

func (g *Gateway) disconnect(cmd Command) {
	g.out.Unsubscribe(cmd.ConnID)
	for _, roomID := range g.registry.Leave(cmd.ConnID) {
		g.logger.Debug("空房間已刪除", "room_id", roomID, "conn_id", cmd.ConnID)
	}
}

// 入站 payload 格式
type playMovePayload struct {
	GameID   string `json:"gameId"`
	ColIndex *int   `json:"colIndex"`
}

type sendMessagePayload struct {
	GameID  string `json:"gameId"`
	Message string `json:"message"`
	Player  string `json:"player"`
}

// DecodeCommand 把傳輸事件解析成指令
//
//   - join_game：payload 是房間 ID 字串
//   - play_move：{gameId, colIndex}
//   - send_message：{gameId, message, player}
func DecodeCommand(connID, event string, data json.RawMessage) (Command, error) {
	cmd := Command{ConnID: connID}

	switch event {
	case EventJoinGame:
		var roomID string
		if err := json.Unmarshal(data, &roomID); err != nil {
			return Command{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, event, err)
		}
		cmd.Kind = CommandJoin
		cmd.RoomID = roomID

	case EventPlayMove:
		var p playMovePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Command{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, event, err)
		}
		if p.ColIndex == nil {
			return Command{}, fmt.Errorf("%w: %s: missing colIndex", ErrInvalidPayload, event)
		}
		cmd.Kind = CommandMove
		cmd.RoomID = p.GameID
		cmd.Column = *p.ColIndex

	case EventSendMessage:
		var p sendMessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return Command{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, event, err)
		}
		cmd.Kind = CommandChat
		cmd.RoomID = p.GameID
		cmd.Author = p.Player
		cmd.Text = p.Message

	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}

	return cmd, nil
}
