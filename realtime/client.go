package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendQueueSize  = 256

	requestTimeout = 5 * time.Second
)

// Client - одно websocket-соединение зрителя или участника.
type Client struct {
	ID       string
	PlayerID int

	hub  *Hub
	conn *websocket.Conn

	// send carries lifecycle, settlement and ack frames in FIFO order.
	send chan []byte
	// leaderboard holds at most the latest snapshot frame.
	leaderboard chan []byte

	mu       sync.Mutex
	rooms    map[int]bool
	isClosed bool
}

func (c *Client) addRoom(tournamentID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rooms[tournamentID] {
		return false
	}
	c.rooms[tournamentID] = true
	return true
}

func (c *Client) removeRoom(tournamentID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, tournamentID)
}

func (c *Client) inRoom(tournamentID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[tournamentID]
}

func (c *Client) roomSet() map[int]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make(map[int]bool, len(c.rooms))
	for id := range c.rooms {
		rooms[id] = true
	}
	return rooms
}

func (c *Client) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isClosed {
		close(c.send)
		c.isClosed = true
	}
}

// close форсирует разрыв: насосы завершатся и снимут клиента с учёта.
func (c *Client) close() {
	c.conn.Close()
}

// queueEvent ставит кадр в FIFO-очередь. false - очередь переполнена.
func (c *Client) queueEvent(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return true
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// queueSnapshot кладёт кадр лидерборда, вытесняя недоставленный старый.
func (c *Client) queueSnapshot(message []byte) {
	for {
		select {
		case c.leaderboard <- message:
			return
		default:
			select {
			case <-c.leaderboard:
			default:
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("connection_id", c.ID), slog.Any("error", err))
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendMessage(ServerMessage{Type: EventError, Payload: ErrorPayload{
				Code: "bad_message", Message: "message is not valid JSON", Recoverable: true,
			}})
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch msg.Type {
	case MessagePing:
		c.sendMessage(ServerMessage{Type: EventPong})

	case MessageJoin:
		c.handleJoin(ctx, msg.TournamentID)

	case MessageLeave:
		c.hub.LeaveRoom(c, msg.TournamentID)
		c.ack(msg.Type, nil)

	case MessageScoreUpdate:
		// Отправка результата без входа в комнату отклоняется, а не
		// принимается молча.
		if !c.inRoom(msg.TournamentID) {
			c.sendMessage(ServerMessage{Type: EventError, TournamentID: msg.TournamentID, Payload: ErrorPayload{
				Code: "not_joined", Message: "join the tournament room before submitting scores", Recoverable: true,
			}})
			return
		}
		err := c.hub.engine.SubmitScore(ctx, msg.TournamentID, c.PlayerID, msg.Score)
		c.ack(msg.Type, err)

	case MessageLeaderboardFetch:
		snapshot, err := c.hub.engine.Leaderboard(ctx, msg.TournamentID, msg.Limit)
		if err != nil {
			c.ack(msg.Type, err)
			return
		}
		c.sendMessage(ServerMessage{Type: EventLeaderboardUpdate, TournamentID: msg.TournamentID, Payload: snapshot})

	default:
		c.sendMessage(ServerMessage{Type: EventError, Payload: ErrorPayload{
			Code: "unknown_type", Message: "unsupported message type: " + msg.Type, Recoverable: true,
		}})
	}
}

// handleJoin регистрирует членство и сразу шлёт полный снимок: клиент,
// пропустивший события в отключке, восстанавливается без реплея истории.
func (c *Client) handleJoin(ctx context.Context, tournamentID int) {
	state, err := c.hub.engine.RoomState(ctx, tournamentID)
	if err != nil {
		c.ack(MessageJoin, err)
		return
	}

	// Снимок кладётся до добавления в комнату: после членства любой
	// рассылаемый снимок свежее и вытесняет этот, а не наоборот.
	if snapshot, err := c.hub.engine.Leaderboard(ctx, tournamentID, 0); err == nil {
		raw, marshalErr := json.Marshal(ServerMessage{
			Type: EventLeaderboardUpdate, TournamentID: tournamentID, Payload: snapshot,
		})
		if marshalErr == nil {
			c.queueSnapshot(raw)
		}
	}

	joined := c.hub.JoinRoom(c, tournamentID)
	c.ack(MessageJoin, nil)
	c.sendMessage(ServerMessage{Type: EventTournamentState, TournamentID: tournamentID, Payload: state})

	if joined {
		c.hub.BroadcastToRoom(tournamentID, ServerMessage{Type: EventUserJoined, Payload: UserJoinedPayload{
			PlayerID:          c.PlayerID,
			TotalParticipants: c.hub.RoomSize(tournamentID),
		}})
	}
}

func (c *Client) ack(of string, err error) {
	payload := AckPayload{Of: of, Success: err == nil}
	if err != nil {
		payload.Error = c.hub.engine.DescribeError(err).Message
	}
	c.sendMessage(ServerMessage{Type: EventAck, Payload: payload})
}

func (c *Client) sendMessage(msg ServerMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal frame", slog.String("connection_id", c.ID), slog.Any("error", err))
		return
	}
	if !c.queueEvent(raw) {
		c.close()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case message := <-c.leaderboard:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// Heartbeat: только для выявления мёртвых соединений.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
