// Package internal 提供即時多人四子棋的房間與對局引擎。
//
// 房間管理
//
// 以房間 ID 為鍵的記憶體內註冊表：
//   - 第一個連線加入時建立房間（空棋盤、P1 先手）
//   - 最後一個連線斷開時立即刪除房間
//   - 不做持久化，重啟後所有房間消失
//
// # 對局規則
//
//   - 6 × 7 棋盤，落子佔用該欄最底部的空格
//   - 任一方形成水平、垂直或兩個斜向的四子連線即獲勝
//   - 獲勝後房間進入終止狀態，之後的落子一律忽略
//   - 欄位已滿或超出範圍的落子不改變狀態、不廣播
//
// # WebSocket 協定
//
// 雙向訊息皆為 {"event": "...", "data": ...}：
//
//	join_game       data: "房間ID"
//	play_move       data: {"gameId": "房間ID", "colIndex": 3}
//	send_message    data: {"gameId": "房間ID", "message": "gg", "player": "P1"}
//	update_game     data: 房間完整快照（加入、落子後）
//	receive_message data: {"player": "P1", "message": "gg"}（聊天後，只含新訊息）
//
// 架構
//
//   - Board / FindWin：純函式，棋盤與連線判定
//   - Room：單局狀態（參與者、棋盤、回合、結果、聊天）
//   - Registry：roomID → Room，唯一跨連線共享的狀態
//   - Gateway：把事件轉成指令，同步處理後廣播
//   - WebSocketHub：連線、房間群組、心跳
//   - Handler：存活檢查、健康檢查、統計與 CORS
//
// 使用範例
//
//	registry := internal.NewRegistry(logger)
//	hub := internal.NewWebSocketHub(internal.HubOptionsFromConfig(cfg), logger)
//	gateway := internal.NewGateway(registry, hub, logger)
//	hub.SetDispatcher(gateway)
//
//	handler := internal.NewHandler(registry, cfg.Server.AllowedOrigins, logger)
//	http.ListenAndServe(":3001", internal.NewRouter(handler, hub))
package internal
