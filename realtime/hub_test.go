package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/yufr007/seacaster-sub001/models"
)

type submission struct {
	TournamentID int
	PlayerID     int
	Score        float64
}

// stubEngine отвечает фиксированными данными и помнит, что у него спрашивали.
type stubEngine struct {
	mu          sync.Mutex
	submissions []submission
	stateErr    error
	submitErr   error
	snapshotGen int

	// onLeaderboard вызывается при каждом запросе снимка.
	onLeaderboard func()
}

func (e *stubEngine) setStateErr(err error)  { e.mu.Lock(); e.stateErr = err; e.mu.Unlock() }
func (e *stubEngine) setSubmitErr(err error) { e.mu.Lock(); e.submitErr = err; e.mu.Unlock() }

func (e *stubEngine) RoomState(ctx context.Context, tournamentID int) (TournamentStatePayload, error) {
	e.mu.Lock()
	err := e.stateErr
	e.mu.Unlock()
	if err != nil {
		return TournamentStatePayload{}, err
	}
	return TournamentStatePayload{
		Status:              models.StatusLive,
		CurrentParticipants: 3,
		MaxParticipants:     10,
	}, nil
}

func (e *stubEngine) Leaderboard(ctx context.Context, tournamentID, limit int) (models.LeaderboardSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.onLeaderboard != nil {
		e.onLeaderboard()
	}
	e.snapshotGen++
	return models.LeaderboardSnapshot{
		TournamentID: tournamentID,
		Rows:         []models.LeaderboardRow{{Rank: 1, PlayerID: 1, Score: float64(e.snapshotGen)}},
		TotalEntries: 1,
	}, nil
}

func (e *stubEngine) SubmitScore(ctx context.Context, tournamentID, playerID int, score float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.submitErr != nil {
		return e.submitErr
	}
	e.submissions = append(e.submissions, submission{tournamentID, playerID, score})
	return nil
}

func (e *stubEngine) DescribeError(err error) ErrorPayload {
	return ErrorPayload{Code: "stub", Message: err.Error(), Recoverable: true}
}

func (e *stubEngine) submissionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.submissions)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wsFrame - распакованный серверный кадр с сырой полезной нагрузкой.
type wsFrame struct {
	Type         string          `json:"type"`
	TournamentID int             `json:"tournament_id"`
	Payload      json.RawMessage `json:"payload"`
}

func dialHub(t *testing.T, hub *Hub, playerID int) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		id, _ := strconv.Atoi(r.URL.Query().Get("player"))
		hub.Attach(conn, id)
	}))

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?player=" + strconv.Itoa(playerID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		server.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// collectFrames читает count кадров. Кадры из FIFO-очереди и канала
// лидерборда перемежаются недетерминированно, поэтому ответы
// группируются по типу, а не проверяются по порядку.
func collectFrames(t *testing.T, conn *websocket.Conn, count int) map[string][]wsFrame {
	t.Helper()
	byType := make(map[string][]wsFrame)
	for i := 0; i < count; i++ {
		frame := readFrame(t, conn)
		byType[frame.Type] = append(byType[frame.Type], frame)
	}
	return byType
}

func sendMessage(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write message: %v", err)
	}
}

func TestHubJoinFlow(t *testing.T) {
	Convey("Given a running hub and a connected client", t, func() {
		engine := &stubEngine{}
		hub := NewHub(discardLogger())
		hub.SetEngine(engine)
		go hub.Run()
		conn, cleanup := dialHub(t, hub, 7)
		defer cleanup()

		Convey("When the client joins a tournament room", func() {
			sendMessage(t, conn, ClientMessage{Type: MessageJoin, TournamentID: 42})
			frames := collectFrames(t, conn, 4)

			Convey("Then it gets an ack, the room state and a full snapshot", func() {
				So(frames[EventAck], ShouldHaveLength, 1)
				var ack AckPayload
				So(json.Unmarshal(frames[EventAck][0].Payload, &ack), ShouldBeNil)
				So(ack.Of, ShouldEqual, MessageJoin)
				So(ack.Success, ShouldBeTrue)

				So(frames[EventTournamentState], ShouldHaveLength, 1)
				var state TournamentStatePayload
				So(json.Unmarshal(frames[EventTournamentState][0].Payload, &state), ShouldBeNil)
				So(state.Status, ShouldEqual, models.StatusLive)

				So(frames[EventLeaderboardUpdate], ShouldHaveLength, 1)
				So(frames[EventUserJoined], ShouldHaveLength, 1)
			})

			Convey("And the room membership is registered once", func() {
				So(hub.RoomSize(42), ShouldEqual, 1)

				Convey("Even after a duplicate join", func() {
					sendMessage(t, conn, ClientMessage{Type: MessageJoin, TournamentID: 42})
					frames := collectFrames(t, conn, 3)
					// Повторный вход: ack, состояние и снимок, но без user:joined.
					So(frames[EventAck], ShouldHaveLength, 1)
					So(frames[EventUserJoined], ShouldBeEmpty)
					So(hub.RoomSize(42), ShouldEqual, 1)
				})
			})
		})

		Convey("When the room state cannot be resolved", func() {
			engine.setStateErr(errors.New("no such tournament"))
			sendMessage(t, conn, ClientMessage{Type: MessageJoin, TournamentID: 13})
			frame := readFrame(t, conn)

			Convey("Then the join is refused with a failed ack", func() {
				So(frame.Type, ShouldEqual, EventAck)
				var ack AckPayload
				So(json.Unmarshal(frame.Payload, &ack), ShouldBeNil)
				So(ack.Success, ShouldBeFalse)
				So(ack.Error, ShouldContainSubstring, "no such tournament")
				So(hub.RoomSize(13), ShouldEqual, 0)
			})
		})

		Convey("When the client pings", func() {
			sendMessage(t, conn, ClientMessage{Type: MessagePing})
			frame := readFrame(t, conn)

			Convey("Then it gets a pong", func() {
				So(frame.Type, ShouldEqual, EventPong)
			})
		})

		Convey("When the client sends an unknown message type", func() {
			sendMessage(t, conn, ClientMessage{Type: "barrel:roll"})
			frame := readFrame(t, conn)

			Convey("Then it gets a recoverable error", func() {
				So(frame.Type, ShouldEqual, EventError)
				var payload ErrorPayload
				So(json.Unmarshal(frame.Payload, &payload), ShouldBeNil)
				So(payload.Recoverable, ShouldBeTrue)
			})
		})
	})
}

func TestHubScoreSubmission(t *testing.T) {
	Convey("Given a client connected to a running hub", t, func() {
		engine := &stubEngine{}
		hub := NewHub(discardLogger())
		hub.SetEngine(engine)
		go hub.Run()
		conn, cleanup := dialHub(t, hub, 7)
		defer cleanup()

		Convey("When a score arrives before joining the room", func() {
			sendMessage(t, conn, ClientMessage{Type: MessageScoreUpdate, TournamentID: 42, Score: 10})
			frame := readFrame(t, conn)

			Convey("Then it is rejected, not silently accepted", func() {
				So(frame.Type, ShouldEqual, EventError)
				var payload ErrorPayload
				So(json.Unmarshal(frame.Payload, &payload), ShouldBeNil)
				So(payload.Code, ShouldEqual, "not_joined")
				So(engine.submissionCount(), ShouldEqual, 0)
			})
		})

		Convey("When the client joins and then submits", func() {
			sendMessage(t, conn, ClientMessage{Type: MessageJoin, TournamentID: 42})
			collectFrames(t, conn, 4)

			sendMessage(t, conn, ClientMessage{Type: MessageScoreUpdate, TournamentID: 42, Score: 55.5})
			frame := readFrame(t, conn)

			Convey("Then the engine records the submission and the client gets an ack", func() {
				So(frame.Type, ShouldEqual, EventAck)
				var ack AckPayload
				So(json.Unmarshal(frame.Payload, &ack), ShouldBeNil)
				So(ack.Of, ShouldEqual, MessageScoreUpdate)
				So(ack.Success, ShouldBeTrue)

				engine.mu.Lock()
				defer engine.mu.Unlock()
				So(engine.submissions, ShouldHaveLength, 1)
				So(engine.submissions[0], ShouldResemble, submission{42, 7, 55.5})
			})
		})

		Convey("When the engine rejects the submission", func() {
			sendMessage(t, conn, ClientMessage{Type: MessageJoin, TournamentID: 42})
			collectFrames(t, conn, 4)

			engine.setSubmitErr(errors.New("tournament is not live"))
			sendMessage(t, conn, ClientMessage{Type: MessageScoreUpdate, TournamentID: 42, Score: 5})
			frame := readFrame(t, conn)

			Convey("Then the ack carries the failure", func() {
				So(frame.Type, ShouldEqual, EventAck)
				var ack AckPayload
				So(json.Unmarshal(frame.Payload, &ack), ShouldBeNil)
				So(ack.Success, ShouldBeFalse)
				So(ack.Error, ShouldContainSubstring, "not live")
			})
		})
	})
}

func TestHubLeaveRoom(t *testing.T) {
	Convey("Given a client in a room", t, func() {
		engine := &stubEngine{}
		hub := NewHub(discardLogger())
		hub.SetEngine(engine)
		go hub.Run()
		conn, cleanup := dialHub(t, hub, 7)
		defer cleanup()

		sendMessage(t, conn, ClientMessage{Type: MessageJoin, TournamentID: 42})
		collectFrames(t, conn, 4)

		Convey("When the client leaves", func() {
			sendMessage(t, conn, ClientMessage{Type: MessageLeave, TournamentID: 42})
			frame := readFrame(t, conn)

			Convey("Then the membership is gone and leaving again is harmless", func() {
				So(frame.Type, ShouldEqual, EventAck)
				So(hub.RoomSize(42), ShouldEqual, 0)

				sendMessage(t, conn, ClientMessage{Type: MessageLeave, TournamentID: 42})
				frame := readFrame(t, conn)
				So(frame.Type, ShouldEqual, EventAck)
				So(hub.RoomSize(42), ShouldEqual, 0)
			})
		})
	})
}

func TestSnapshotCoalescing(t *testing.T) {
	Convey("Given a client whose write pump is not draining", t, func() {
		client := &Client{
			send:        make(chan []byte, sendQueueSize),
			leaderboard: make(chan []byte, 1),
			rooms:       map[int]bool{42: true},
		}

		Convey("When several snapshots are queued back to back", func() {
			client.queueSnapshot([]byte(`{"v":1}`))
			client.queueSnapshot([]byte(`{"v":2}`))
			client.queueSnapshot([]byte(`{"v":3}`))

			Convey("Then only the latest survives", func() {
				So(string(<-client.leaderboard), ShouldEqual, `{"v":3}`)
				select {
				case extra := <-client.leaderboard:
					So(string(extra), ShouldBeEmpty)
				default:
				}
			})
		})

		Convey("When lifecycle events fill the queue to the brim", func() {
			for i := 0; i < sendQueueSize; i++ {
				So(client.queueEvent([]byte(`{}`)), ShouldBeTrue)
			}

			Convey("Then the next event reports overflow instead of blocking", func() {
				So(client.queueEvent([]byte(`{}`)), ShouldBeFalse)
			})
		})
	})
}

func TestJoinSnapshotYieldsToBroadcasts(t *testing.T) {
	Convey("Given a client joining while score updates are flowing", t, func() {
		engine := &stubEngine{}
		hub := NewHub(discardLogger())
		hub.SetEngine(engine)

		client := &Client{
			ID:          "joiner",
			PlayerID:    7,
			hub:         hub,
			send:        make(chan []byte, sendQueueSize),
			leaderboard: make(chan []byte, 1),
			rooms:       make(map[int]bool),
		}
		hub.clients[client] = true

		var sizeDuringFetch int
		engine.onLeaderboard = func() { sizeDuringFetch = hub.RoomSize(42) }
		client.handleJoin(context.Background(), 42)

		Convey("Then the join snapshot is queued before the room can see the client", func() {
			So(sizeDuringFetch, ShouldEqual, 0)
			So(hub.RoomSize(42), ShouldEqual, 1)
		})

		Convey("And a broadcast after joining displaces the join snapshot, never the reverse", func() {
			hub.BroadcastToRoom(42, ServerMessage{
				Type:    EventLeaderboardUpdate,
				Payload: models.LeaderboardSnapshot{TotalEntries: 99},
			})

			var frame wsFrame
			So(json.Unmarshal(<-client.leaderboard, &frame), ShouldBeNil)
			var snapshot models.LeaderboardSnapshot
			So(json.Unmarshal(frame.Payload, &snapshot), ShouldBeNil)
			So(snapshot.TotalEntries, ShouldEqual, 99)
		})
	})
}

func TestBroadcastCoalescesOnlyLeaderboards(t *testing.T) {
	Convey("Given a hub with one slow client in a room", t, func() {
		engine := &stubEngine{}
		hub := NewHub(discardLogger())
		hub.SetEngine(engine)

		client := &Client{
			ID:          "slow",
			hub:         hub,
			send:        make(chan []byte, sendQueueSize),
			leaderboard: make(chan []byte, 1),
			rooms:       make(map[int]bool),
		}
		hub.clients[client] = true
		So(hub.JoinRoom(client, 42), ShouldBeTrue)

		Convey("When many leaderboard frames race ahead of the reader", func() {
			for v := 1; v <= 50; v++ {
				hub.BroadcastToRoom(42, ServerMessage{
					Type:    EventLeaderboardUpdate,
					Payload: models.LeaderboardSnapshot{TotalEntries: v},
				})
			}

			Convey("Then the pending frame is the latest one", func() {
				var frame wsFrame
				So(json.Unmarshal(<-client.leaderboard, &frame), ShouldBeNil)
				var snapshot models.LeaderboardSnapshot
				So(json.Unmarshal(frame.Payload, &snapshot), ShouldBeNil)
				So(snapshot.TotalEntries, ShouldEqual, 50)
			})

			Convey("And the FIFO queue stays empty", func() {
				select {
				case <-client.send:
					So("unexpected frame in FIFO queue", ShouldBeEmpty)
				default:
				}
			})
		})

		Convey("When lifecycle events are broadcast", func() {
			hub.BroadcastToRoom(42, ServerMessage{Type: EventTournamentState})
			hub.BroadcastToRoom(42, ServerMessage{Type: EventTournamentSettled})

			Convey("Then both arrive in order, none coalesced", func() {
				var first, second wsFrame
				So(json.Unmarshal(<-client.send, &first), ShouldBeNil)
				So(json.Unmarshal(<-client.send, &second), ShouldBeNil)
				So(first.Type, ShouldEqual, EventTournamentState)
				So(second.Type, ShouldEqual, EventTournamentSettled)
			})
		})
	})
}
