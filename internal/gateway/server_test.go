package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"packetSync/internal/model"
)

func newTestGateway(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	gw := NewServer(Config{AuthSecret: "test-secret"}, nil)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return gw, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) serverMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func TestHandlerRejectsMissingToken(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var msg serverMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if msg.Code != "AUTH_REQUIRED" {
		t.Fatalf("code = %q, want AUTH_REQUIRED", msg.Code)
	}
}

func TestHandlerRejectsExpiredToken(t *testing.T) {
	gw, srv := newTestGateway(t)

	token := gw.verifier.Sign("0xabcd", time.Now().Add(-time.Minute))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected dial failure for expired token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}
}

func TestSubscribeReceivesBroadcast(t *testing.T) {
	gw, srv := newTestGateway(t)

	token := gw.verifier.Sign("0xabcd", time.Now().Add(time.Hour))
	ws := dial(t, srv, token)

	if err := ws.WriteJSON(clientMessage{Type: msgSubscribe, PacketID: "pk1"}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	ack := readMessage(t, ws)
	if ack.Type != "subscribed" || ack.PacketID != "pk1" {
		t.Fatalf("ack = %+v", ack)
	}

	payload, _ := json.Marshal(model.Broadcast{
		Type:     model.TypePacketClaimed,
		EventID:  "0xaa:0",
		PacketID: "pk1",
		Claimer:  "0xalice",
		Amount:   "600",
	})
	gw.HandleBroadcast("packets/pk1", payload)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var b model.Broadcast
	if err := json.Unmarshal(data, &b); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if b.Type != model.TypePacketClaimed || b.PacketID != "pk1" || b.Amount != "600" {
		t.Fatalf("broadcast = %+v", b)
	}
}

func TestBroadcastNotRoutedToOtherPackets(t *testing.T) {
	gw, srv := newTestGateway(t)

	token := gw.verifier.Sign("0xabcd", time.Now().Add(time.Hour))
	ws := dial(t, srv, token)

	if err := ws.WriteJSON(clientMessage{Type: msgSubscribe, PacketID: "pk1"}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	readMessage(t, ws) // ack

	payload, _ := json.Marshal(model.Broadcast{Type: model.TypePacketClaimed, PacketID: "pk2"})
	gw.HandleBroadcast("packets/pk2", payload)

	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatalf("received a broadcast for a packet we never subscribed to")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	gw, srv := newTestGateway(t)

	token := gw.verifier.Sign("0xabcd", time.Now().Add(time.Hour))
	ws := dial(t, srv, token)

	if err := ws.WriteJSON(clientMessage{Type: msgSubscribe, PacketID: "pk1"}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	readMessage(t, ws)

	if err := ws.WriteJSON(clientMessage{Type: msgUnsubscribe, PacketID: "pk1"}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	ack := readMessage(t, ws)
	if ack.Type != "unsubscribed" {
		t.Fatalf("ack = %+v", ack)
	}

	payload, _ := json.Marshal(model.Broadcast{Type: model.TypePacketClaimed, PacketID: "pk1"})
	gw.HandleBroadcast("packets/pk1", payload)

	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatalf("received a broadcast after unsubscribing")
	}
}

func TestBadMessageGetsErrorReply(t *testing.T) {
	gw, srv := newTestGateway(t)

	token := gw.verifier.Sign("0xabcd", time.Now().Add(time.Hour))
	ws := dial(t, srv, token)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readMessage(t, ws)
	if msg.Type != "error" || msg.Code != "BAD_MESSAGE" {
		t.Fatalf("reply = %+v", msg)
	}

	if err := ws.WriteJSON(clientMessage{Type: "nonsense"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readMessage(t, ws)
	if msg.Type != "error" || msg.Code != "BAD_MESSAGE" {
		t.Fatalf("reply = %+v", msg)
	}
}

func TestDisconnectReleasesRegistrations(t *testing.T) {
	gw, srv := newTestGateway(t)

	token := gw.verifier.Sign("0xabcd", time.Now().Add(time.Hour))
	ws := dial(t, srv, token)

	if err := ws.WriteJSON(clientMessage{Type: msgSubscribe, PacketID: "pk1"}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	readMessage(t, ws)

	if got := len(gw.Registry().Connections("pk1")); got != 1 {
		t.Fatalf("connections before close = %d", got)
	}

	ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(gw.Registry().Connections("pk1")) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("registration survived disconnect")
}
