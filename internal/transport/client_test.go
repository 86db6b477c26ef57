package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/tradesim/internal/dispatch"
	"github.com/rickgao/tradesim/internal/model"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig(server *httptest.Server) ClientConfig {
	return ClientConfig{
		URL:          wsURL(server),
		PingTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
	if err := client.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_Requests(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Request
	)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req Request
			if err := json.Unmarshal(data, &req); err != nil {
				t.Errorf("unmarshal request: %v", err)
				return
			}
			mu.Lock()
			received = append(received, req)
			mu.Unlock()
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if err := client.SubscribeQuote("SHFE.cu2401", "DCE.m2405"); err != nil {
		t.Fatalf("SubscribeQuote failed: %v", err)
	}
	id, err := client.InsertOrder(dispatch.InsertOrderRequest{
		Symbol:     "SHFE.cu2401",
		Direction:  model.DirectionBuy,
		Offset:     model.OffsetOpen,
		PriceType:  model.PriceTypeLimit,
		LimitPrice: 4000,
		Volume:     2,
	})
	if err != nil {
		t.Fatalf("InsertOrder failed: %v", err)
	}
	if id == "" {
		t.Error("InsertOrder returned an empty id")
	}
	if err := client.CancelOrder(id); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if err := client.Peek(); err != nil {
		t.Fatalf("Peek failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 4 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 4 {
		t.Fatalf("received %d requests, want 4", len(received))
	}

	wantAids := []string{AidSubscribeQuote, AidInsertOrder, AidCancelOrder, AidPeekMessage}
	for i, want := range wantAids {
		if received[i].Aid != want {
			t.Errorf("request %d aid = %s, want %s", i, received[i].Aid, want)
		}
	}
	if got := received[0].Symbols(); len(got) != 2 || got[1] != "DCE.m2405" {
		t.Errorf("subscribe symbols = %v", got)
	}
	ins := received[1]
	if ins.OrderID != id || ins.Symbol != "SHFE.cu2401" || ins.LimitPrice != 4000 || ins.Volume != 2 {
		t.Errorf("insert_order = %+v", ins.InsertOrderRequest)
	}
	if received[2].OrderID != id {
		t.Errorf("cancel_order id = %s, want %s", received[2].OrderID, id)
	}
}

func TestClient_Messages(t *testing.T) {
	packets := []string{
		`{"aid":"rtn_data","data":[{"kind":"notify","key":"cancel_noop","notify":{"level":"INFO","code":"cancel_noop","content":"x"}}]}`,
		`not json`,
		`{"aid":"rtn_error","request":"cancel_order","error":"order_id is required"}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, p := range packets {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	var got []Message
	timeout := time.After(500 * time.Millisecond)
	for len(got) < 2 {
		select {
		case msg := <-client.Messages():
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
			got = append(got, msg)
		case <-timeout:
			t.Fatalf("timeout waiting for messages, received %d of 2", len(got))
		}
	}

	if got[0].Aid != AidRtnData || len(got[0].Data) != 1 || got[0].Data[0].Notify == nil {
		t.Errorf("first message = %+v, want rtn_data with one notify", got[0].Response)
	}
	if got[1].Aid != AidRtnError || got[1].Request != AidCancelOrder {
		t.Errorf("second message = %+v, want rtn_error for cancel_order", got[1].Response)
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://localhost:12345", BufferSize: 1}, nil)

	if err := client.Send([]byte("test")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := client.Peek(); err != ErrNotConnected {
		t.Errorf("Peek = %v, want ErrNotConnected", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestClient_PingHandler(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteControl(websocket.PingMessage, []byte("heartbeat"), time.Now().Add(time.Second)); err != nil {
			t.Logf("ping error: %v", err)
			return
		}
		time.Sleep(500 * time.Millisecond)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	time.Sleep(200 * time.Millisecond)

	if !client.IsConnected() {
		t.Error("expected client to be connected after ping")
	}
}

func TestRequest_Symbols(t *testing.T) {
	tests := []struct {
		insList string
		want    []string
	}{
		{"", nil},
		{"SHFE.cu2401", []string{"SHFE.cu2401"}},
		{"SHFE.cu2401, DCE.m2405,", []string{"SHFE.cu2401", "DCE.m2405"}},
		{" , ", nil},
	}
	for _, tt := range tests {
		got := Request{InsList: tt.insList}.Symbols()
		if len(got) != len(tt.want) {
			t.Errorf("Symbols(%q) = %v, want %v", tt.insList, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Symbols(%q)[%d] = %s, want %s", tt.insList, i, got[i], tt.want[i])
			}
		}
	}
}

func TestRequest_JSON(t *testing.T) {
	data := `{"aid":"insert_order","order_id":"o1","instrument_id":"SHFE.cu2401","direction":"SELL","offset":"CLOSETODAY","price_type":"ANY","volume":3}`

	var req Request
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if req.Aid != AidInsertOrder {
		t.Errorf("Aid = %s, want insert_order", req.Aid)
	}
	if req.OrderID != "o1" || req.Symbol != "SHFE.cu2401" {
		t.Errorf("ids = %s/%s, want o1/SHFE.cu2401", req.OrderID, req.Symbol)
	}
	if req.Direction != model.DirectionSell || req.Offset != model.OffsetCloseToday || req.PriceType != model.PriceTypeAny {
		t.Errorf("order = %+v", req.InsertOrderRequest)
	}
	if req.Volume != 3 {
		t.Errorf("Volume = %d, want 3", req.Volume)
	}
}

func TestDefaultConfigs(t *testing.T) {
	clientCfg := DefaultClientConfig()
	if clientCfg.PingTimeout != 60*time.Second {
		t.Errorf("PingTimeout = %v, want 60s", clientCfg.PingTimeout)
	}
	if clientCfg.BufferSize != 1000 {
		t.Errorf("BufferSize = %d, want 1000", clientCfg.BufferSize)
	}

	srvCfg := DefaultServerConfig()
	if srvCfg.PingInterval >= clientCfg.PingTimeout {
		t.Errorf("PingInterval %v must be below client PingTimeout %v", srvCfg.PingInterval, clientCfg.PingTimeout)
	}
	if srvCfg.ReadLimit != 64<<10 {
		t.Errorf("ReadLimit = %d, want 65536", srvCfg.ReadLimit)
	}
}
