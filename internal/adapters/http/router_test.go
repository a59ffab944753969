package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/dkeye/Rendezvous/internal/app/relay"
	"github.com/dkeye/Rendezvous/internal/config"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/metrics"
	"github.com/dkeye/Rendezvous/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type testServer struct {
	srv   *httptest.Server
	deps  Deps
	wsURL string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:       "test",
		ReadLimit:  64 * 1024,
		PingPeriod: 54 * time.Second,
		PongWait:   60 * time.Second,
		WriteWait:  10 * time.Second,
		SendBuffer: 64,
	}
	reg := app.NewRegistry()
	rooms := app.NewRoomDirectory(app.DefaultRoomCapacity)
	m := metrics.New()
	r := relay.New(reg, rooms, app.SimplePolicy{}, nil, m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	d := Deps{Relay: r, Presence: reg, Rooms: rooms, Metrics: m}
	srv := httptest.NewServer(SetupRouter(ctx, cfg, d))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return &testServer{
		srv:   srv,
		deps:  d,
		wsURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal",
	}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *testServer) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(s.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return resp.StatusCode, body
}

func writeMsg(t *testing.T, conn *websocket.Conn, m protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m, err := protocol.Decode(data, protocol.FromServer)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSignal_TwoPeersJoinAndCall(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t)
	b := s.dial(t)

	writeMsg(t, a, protocol.JoinRoom("a@x.com", "42"))
	if m := readMsg(t, a); m.Type != protocol.TypeJoinedRoom || m.RoomCode != "42" {
		t.Fatalf("a got %+v, want joined-room 42", m)
	}

	writeMsg(t, b, protocol.JoinRoom("b@x.com", "42"))
	if m := readMsg(t, b); m.Type != protocol.TypeJoinedRoom {
		t.Fatalf("b got %+v, want joined-room", m)
	}
	if m := readMsg(t, a); m.Type != protocol.TypeUserJoined || m.Identity != "b@x.com" {
		t.Fatalf("a got %+v, want user-joined b", m)
	}

	offer := protocol.SDP{Type: "offer", SDP: "v=0 offer"}
	writeMsg(t, a, protocol.CallUser("b@x.com", offer))
	m := readMsg(t, b)
	if m.Type != protocol.TypeIncomingCall || m.FromIdentity != "a@x.com" || m.Offer == nil || m.Offer.SDP != offer.SDP {
		t.Fatalf("b got %+v, want incoming-call from a", m)
	}

	answer := protocol.SDP{Type: "answer", SDP: "v=0 answer"}
	writeMsg(t, b, protocol.AnswerCall("a@x.com", answer))
	m = readMsg(t, a)
	if m.Type != protocol.TypeCallAnswered || m.FromIdentity != "b@x.com" || m.Answer == nil || m.Answer.SDP != answer.SDP {
		t.Fatalf("a got %+v, want call-answered from b", m)
	}

	if got := s.deps.Metrics.Get(metrics.CallsForwarded); got != 1 {
		t.Fatalf("calls_forwarded = %d, want 1", got)
	}
}

func TestSignal_CloseCascadesUserLeft(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t)
	b := s.dial(t)

	writeMsg(t, a, protocol.JoinRoom("a@x.com", "42"))
	readMsg(t, a)
	writeMsg(t, b, protocol.JoinRoom("b@x.com", "42"))
	readMsg(t, b)
	readMsg(t, a)

	_ = b.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = b.Close()

	if m := readMsg(t, a); m.Type != protocol.TypeUserLeft || m.Identity != "b@x.com" {
		t.Fatalf("a got %+v, want user-left b", m)
	}
	waitFor(t, "presence count 1", func() bool { return s.deps.Presence.Count() == 1 })
	if members := s.deps.Rooms.MembersOf("42"); len(members) != 1 || members[0] != "a@x.com" {
		t.Fatalf("members = %v, want [a@x.com]", members)
	}
}

func TestSignal_MalformedFrame(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t)

	if err := a.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := readMsg(t, a)
	if m.Type != protocol.TypeError || m.Code != protocol.CodeBadPayload {
		t.Fatalf("got %+v, want bad-payload error", m)
	}

	writeMsg(t, a, protocol.Ping())
	if m := readMsg(t, a); m.Type != protocol.TypePong {
		t.Fatalf("got %+v, want pong", m)
	}
}

func TestAPI_RoomsAndHealth(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t)
	writeMsg(t, a, protocol.JoinRoom("a@x.com", "42"))
	readMsg(t, a)

	code, body := s.get(t, "/healthz")
	if code != http.StatusOK {
		t.Fatalf("healthz status = %d", code)
	}
	var health struct {
		Status    string `json:"status"`
		Connected int    `json:"connected"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("healthz body %s: %v", body, err)
	}
	if health.Status != "ok" || health.Connected != 1 {
		t.Fatalf("healthz = %+v", health)
	}

	code, body = s.get(t, "/api/rooms")
	if code != http.StatusOK {
		t.Fatalf("rooms status = %d", code)
	}
	var rooms roomsResponse
	if err := json.Unmarshal(body, &rooms); err != nil {
		t.Fatalf("rooms body %s: %v", body, err)
	}
	if len(rooms.Rooms) != 1 || rooms.Rooms[0].Code != "42" || rooms.Rooms[0].MemberCount != 1 {
		t.Fatalf("rooms = %+v", rooms)
	}

	code, body = s.get(t, "/api/rooms/42")
	if code != http.StatusOK {
		t.Fatalf("room status = %d", code)
	}
	var room roomResponse
	if err := json.Unmarshal(body, &room); err != nil {
		t.Fatalf("room body %s: %v", body, err)
	}
	if len(room.Members) != 1 || room.Members[0] != domain.Identity("a@x.com") {
		t.Fatalf("room = %+v", room)
	}

	if code, _ := s.get(t, "/api/rooms/nope"); code != http.StatusNotFound {
		t.Fatalf("missing room status = %d, want 404", code)
	}
}

func TestAPI_StatsAndMetrics(t *testing.T) {
	s := newTestServer(t)
	s.deps.Metrics.Add(metrics.Joins, 3)

	code, body := s.get(t, "/api/stats")
	if code != http.StatusOK {
		t.Fatalf("stats status = %d", code)
	}
	var stats map[string]uint64
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("stats body %s: %v", body, err)
	}
	if stats[metrics.Joins] != 3 {
		t.Fatalf("stats = %v", stats)
	}

	code, body = s.get(t, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics status = %d", code)
	}
	if want := `rendezvous_signaling_events_total{event="joins"} 3`; !strings.Contains(string(body), want) {
		t.Fatalf("metrics body missing %q:\n%s", want, body)
	}
}
