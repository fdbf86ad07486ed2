package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/yufr007/seacaster-sub001/middleware"
	"github.com/yufr007/seacaster-sub001/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене здесь должна быть проверка Origin,
		// чтобы разрешать подключения только с доверенных доменов.
		return true // Для разработки разрешаем все
	},
}

type WebSocketHandler struct {
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		logger: logger,
	}
}

// ServeWs апгрейдит соединение и подключает клиента к хабу.
// Комнаты турниров клиент выбирает уже по websocket-протоколу
// (сообщение join:tournament), одно соединение на игрока.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	playerID, err := middleware.GetPlayerIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader.Upgrade сам отправляет HTTP ошибку клиенту, так что здесь просто логируем.
		h.logger.Error("failed to upgrade websocket connection",
			slog.Int("player_id", playerID),
			slog.Any("error", err))
		return
	}

	client := h.hub.Attach(conn, playerID)
	h.logger.Info("websocket client connected",
		slog.String("connection_id", client.ID),
		slog.Int("player_id", playerID))
}
