package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何把房間狀態即時推送給同一房間的所有連線？
//
// 核心挑戰：
//   1. 群組廣播：以房間 ID 為群組，一個連線可以同時訂閱多個房間
//   2. 斷線處理：每個連線結束時，斷線指令必須剛好送出一次
//   3. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   4. 慢客戶端：廣播不能被單一連線拖住
//
// 設計方案：
//   ✅ WebSocket - 全雙工通信
//   ✅ Hub 模式 - 集中管理連線與群組
//   ✅ Ping/Pong 心跳
//   ✅ 緩衝 channel + 非阻塞送出

// Event 傳輸層訊息框架（雙向皆為 {"event": ..., "data": ...}）
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// inboundEvent 入站訊息，data 延後到 DecodeCommand 再解析
type inboundEvent struct {
	Type string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Dispatcher 處理入站指令（由 Gateway 實作）
type Dispatcher interface {
	Dispatch(cmd Command) error
}

// HubOptions 連線參數
type HubOptions struct {
	AllowedOrigins []string
	MaxMessageSize int64
	SendBuffer     int
	PongWait       time.Duration
	WriteWait      time.Duration
}

// HubOptionsFromConfig 從配置建立連線參數
func HubOptionsFromConfig(cfg *Config) HubOptions {
	return HubOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
	}
}

// WebSocketHub WebSocket 連接中心
//
// 系統設計考量：
//
//  1. 連接映射：
//     - conns: connID -> Connection
//     - groups: roomID -> connID -> Connection（房間廣播用）
//
//  2. 並發安全：RWMutex
//     - 廣播頻繁（讀鎖），註冊/註銷/訂閱少（寫鎖）
//     - 關閉 Send channel 與移出群組在同一個寫鎖內完成，
//     廣播時不可能送到已關閉的 channel
//
//  3. 斷線：readPump 結束時經 sync.Once 送出 CommandDisconnect，
//     Stop() 關閉所有連線時也走同一條路徑
type WebSocketHub struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	opts       HubOptions
	upgrader   websocket.Upgrader
	conns      map[string]*Connection
	groups     map[string]map[string]*Connection // roomID -> connID -> Connection
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

// Connection WebSocket 連接
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *WebSocketHub
	LastPing  time.Time
	mu        sync.Mutex
	closeOnce sync.Once // 確保 channel 只關閉一次
	leaveOnce sync.Once // 確保斷線指令只送出一次
}

// NewWebSocketHub 創建 WebSocket Hub
func NewWebSocketHub(opts HubOptions, logger *slog.Logger) *WebSocketHub {
	hub := &WebSocketHub{
		logger: logger,
		opts:   opts,
		conns:  make(map[string]*Connection),
		groups: make(map[string]map[string]*Connection),
	}

	hub.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return OriginAllowed(opts.AllowedOrigins, r.Header.Get("Origin"))
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	return hub
}

// SetDispatcher 設定入站指令的處理者
//
// Gateway 需要 Hub 當作 Broadcaster，Hub 又需要 Gateway 處理指令，
// 所以在兩者都建立之後再接上。
func (hub *WebSocketHub) SetDispatcher(d Dispatcher) {
	hub.dispatcher = d
}

// ServeWS 處理 WebSocket 連接
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("升級 WebSocket 失敗",
			"error", err,
			"origin", r.Header.Get("Origin"))
		return
	}

	connection := &Connection{
		ID:       uuid.NewString(),
		Conn:     conn,
		Send:     make(chan []byte, hub.opts.SendBuffer),
		Hub:      hub,
		LastPing: time.Now(),
	}

	hub.register(connection)

	hub.wg.Add(1)
	go connection.writePump()
	go connection.readPump()

	hub.logger.Info("WebSocket 連接建立", "conn_id", connection.ID)
}

// register 註冊連接
func (hub *WebSocketHub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.conns[conn.ID] = conn
}

// unregister 取消註冊連接，並移出所有群組
func (hub *WebSocketHub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if actual, exists := hub.conns[conn.ID]; exists && actual == conn {
		delete(hub.conns, conn.ID)
	}
	hub.removeFromGroups(conn.ID)

	conn.closeOnce.Do(func() {
		close(conn.Send)
	})
}

// removeFromGroups 需持有寫鎖
func (hub *WebSocketHub) removeFromGroups(connID string) {
	for roomID, members := range hub.groups {
		delete(members, connID)
		if len(members) == 0 {
			delete(hub.groups, roomID)
		}
	}
}

// Subscribe 把連線加入房間群組
func (hub *WebSocketHub) Subscribe(roomID, connID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	conn, exists := hub.conns[connID]
	if !exists {
		return
	}

	if hub.groups[roomID] == nil {
		hub.groups[roomID] = make(map[string]*Connection)
	}
	hub.groups[roomID][connID] = conn
}

// Unsubscribe 把連線移出所有群組
func (hub *WebSocketHub) Unsubscribe(connID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.removeFromGroups(connID)
}

// Broadcast 廣播事件到房間
//
// 非阻塞：連線緩衝區滿就丟棄這則訊息並記錄。
func (hub *WebSocketHub) Broadcast(roomID, event string, payload any) {
	message, err := json.Marshal(Event{Type: event, Data: payload})
	if err != nil {
		hub.logger.Error("序列化事件失敗", "error", err, "event", event)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for _, conn := range hub.groups[roomID] {
		select {
		case conn.Send <- message:
		default:
			hub.logger.Warn("連接緩衝區滿",
				"room_id", roomID,
				"conn_id", conn.ID,
				"event", event)
		}
	}
}

// Stop 關閉所有連線並等待斷線處理完成
func (hub *WebSocketHub) Stop() {
	hub.mu.RLock()
	conns := make([]*Connection, 0, len(hub.conns))
	for _, conn := range hub.conns {
		conns = append(conns, conn)
	}
	hub.mu.RUnlock()

	// 關閉底層連線，readPump 會結束並送出斷線指令
	for _, conn := range conns {
		conn.Conn.Close()
	}

	hub.wg.Wait()
	hub.logger.Info("WebSocket Hub 已停止")
}

// ConnectionCount 目前連線數
func (hub *WebSocketHub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.conns)
}

// GroupSize 房間群組內的連線數
func (hub *WebSocketHub) GroupSize(roomID string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.groups[roomID])
}

// leave 連線結束：註銷並送出斷線指令（只會執行一次）
func (c *Connection) leave() {
	c.leaveOnce.Do(func() {
		c.Hub.unregister(c)

		if c.Hub.dispatcher != nil {
			_ = c.Hub.dispatcher.Dispatch(Command{Kind: CommandDisconnect, ConnID: c.ID})
		}

		c.Hub.logger.Info("WebSocket 連接關閉", "conn_id", c.ID)
	})
}

// readPump 讀取客戶端消息
//
// 心跳：PongWait 內沒收到任何訊息（包括 Pong）就關閉連線；
// writePump 以 PongWait 的 9/10 為週期送 Ping。
func (c *Connection) readPump() {
	defer func() {
		c.leave()
		c.Conn.Close()
		c.Hub.wg.Done()
	}()

	pongWait := c.Hub.opts.PongWait

	c.Conn.SetReadLimit(c.Hub.opts.MaxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.logger.Warn("WebSocket 讀取錯誤",
					"error", err,
					"conn_id", c.ID)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

// writePump 寫入消息到客戶端
func (c *Connection) writePump() {
	writeWait := c.Hub.opts.WriteWait
	ticker := time.NewTicker(c.Hub.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					c.Hub.logger.Warn("發送消息失敗", "error", err, "conn_id", c.ID)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 處理客戶端消息
func (c *Connection) handleMessage(message []byte) {
	var in inboundEvent
	if err := json.Unmarshal(message, &in); err != nil {
		c.Hub.logger.Warn("解析客戶端消息失敗",
			"error", err,
			"conn_id", c.ID)
		return
	}

	// 應用層心跳，直接回覆給自己
	if in.Type == "ping" {
		if response, err := json.Marshal(Event{Type: "pong", Data: struct{}{}}); err == nil {
			c.trySend(response)
		}
		return
	}

	cmd, err := DecodeCommand(c.ID, in.Type, in.Data)
	if err != nil {
		c.Hub.logger.Debug("忽略無法解析的事件",
			"event", in.Type,
			"error", err,
			"conn_id", c.ID)
		return
	}

	if c.Hub.dispatcher != nil {
		_ = c.Hub.dispatcher.Dispatch(cmd)
	}
}

// trySend 非阻塞送給單一連線
func (c *Connection) trySend(message []byte) {
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()

	if _, alive := c.Hub.conns[c.ID]; !alive {
		return
	}
	select {
	case c.Send <- message:
	default:
	}
}
