package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"
)

// Hub ведёт комнаты турниров и рассылает события их подписчикам.
// Одно соединение может состоять в нескольких комнатах.
type Hub struct {
	engine Engine
	logger *slog.Logger

	clients    map[*Client]bool
	rooms      map[int]map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		rooms:      make(map[int]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// SetEngine привязывает доменный движок. Вызывается один раз при сборке
// приложения, до Run и до первого Attach: сервисы и хаб ссылаются друг
// на друга, поэтому движок подключается после создания обоих.
func (h *Hub) SetEngine(engine Engine) {
	h.engine = engine
}

// Run обслуживает жизненный цикл соединений. Запускается одной горутиной.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("client connected",
				slog.String("connection_id", client.ID),
				slog.Int("player_id", client.PlayerID))

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for tournamentID := range client.roomSet() {
					h.removeFromRoom(client, tournamentID)
				}
				client.markClosed()
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.String("connection_id", client.ID))
		}
	}
}

// Attach оборачивает готовое websocket-соединение в клиента и запускает
// его насосы. PlayerID приходит из уже пройденной аутентификации.
func (h *Hub) Attach(conn *websocket.Conn, playerID int) *Client {
	client := &Client{
		ID:          uuid.NewString(),
		PlayerID:    playerID,
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, sendQueueSize),
		leaderboard: make(chan []byte, 1),
		rooms:       make(map[int]bool),
	}
	h.Register <- client
	go client.writePump()
	go client.readPump()
	return client
}

// JoinRoom добавляет клиента в комнату турнира. Идемпотентно.
// Возвращает true, если членство было добавлено именно сейчас.
func (h *Hub) JoinRoom(client *Client, tournamentID int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !client.addRoom(tournamentID) {
		return false
	}
	if _, ok := h.rooms[tournamentID]; !ok {
		h.rooms[tournamentID] = make(map[*Client]bool)
	}
	h.rooms[tournamentID][client] = true
	h.logger.Info("client joined room",
		slog.String("connection_id", client.ID),
		slog.Int("tournament_id", tournamentID),
		slog.Int("room_size", len(h.rooms[tournamentID])))
	return true
}

// LeaveRoom убирает клиента из комнаты. Идемпотентно.
func (h *Hub) LeaveRoom(client *Client, tournamentID int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.removeRoom(tournamentID)
	h.removeFromRoom(client, tournamentID)
}

// removeFromRoom предполагает удерживаемый h.mu.
func (h *Hub) removeFromRoom(client *Client, tournamentID int) {
	roomClients, ok := h.rooms[tournamentID]
	if !ok {
		return
	}
	delete(roomClients, client)
	if len(roomClients) == 0 {
		delete(h.rooms, tournamentID)
	}
}

// RoomSize возвращает число подписчиков комнаты.
func (h *Hub) RoomSize(tournamentID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[tournamentID])
}

// BroadcastToRoom отправляет событие всем подписчикам комнаты.
// Кадры лидерборда идут через канал с вытеснением: медленный потребитель
// получает только последний снимок. События жизненного цикла и расчёта
// не коалесцируются; клиента, чья очередь переполнена, хаб отключает,
// и тот восстанавливается полным снимком при повторном входе.
func (h *Hub) BroadcastToRoom(tournamentID int, message ServerMessage) {
	message.TournamentID = tournamentID

	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal broadcast",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	roomClients := make([]*Client, 0, len(h.rooms[tournamentID]))
	for client := range h.rooms[tournamentID] {
		roomClients = append(roomClients, client)
	}
	h.mu.RUnlock()

	for _, client := range roomClients {
		if message.Type == EventLeaderboardUpdate {
			client.queueSnapshot(messageBytes)
			continue
		}
		if !client.queueEvent(messageBytes) {
			h.logger.Warn("client send queue full, dropping connection",
				slog.String("connection_id", client.ID),
				slog.Int("tournament_id", tournamentID))
			client.close()
		}
	}
}
