package solverdashboard

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudokulab/sudoku-evolution/evolutionarysudokusolver"
	"github.com/sudokulab/sudoku-evolution/sudokuboard"
)

func startTestDashboard(t *testing.T, config DashboardConfig) *Dashboard {
	t.Helper()

	config.Port = 0
	dashboard, err := NewDashboard(config)
	if err != nil {
		t.Fatalf("NewDashboard failed: %v", err)
	}

	if err := dashboard.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	t.Cleanup(func() { dashboard.Stop() })
	return dashboard
}

func dialTestDashboard(t *testing.T, dashboard *Dashboard) *websocket.Conn {
	t.Helper()

	url := fmt.Sprintf("ws://%s/ws", dashboard.Addr())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDefaultDashboardConfig(t *testing.T) {
	config := DefaultDashboardConfig()

	if config.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", config.Port)
	}

	if config.MaxConnections != 100 {
		t.Errorf("Expected max connections 100, got %d", config.MaxConnections)
	}

	if config.PongTimeout <= config.PingInterval {
		t.Error("Pong timeout should exceed ping interval")
	}
}

func TestNewDashboardInvalidConfig(t *testing.T) {
	if _, err := NewDashboard(DashboardConfig{Port: -1}); err == nil {
		t.Error("Expected error for negative port")
	}

	config := DashboardConfig{
		PingInterval: time.Minute,
		PongTimeout:  time.Second,
	}
	if _, err := NewDashboard(config); err == nil {
		t.Error("Expected error for pong timeout below ping interval")
	}
}

func TestStartStop(t *testing.T) {
	dashboard := startTestDashboard(t, DefaultDashboardConfig())

	if dashboard.Addr() == nil {
		t.Fatal("Addr should be set after Start")
	}

	if err := dashboard.Start(); err == nil {
		t.Error("Expected error when starting twice")
	}

	if err := dashboard.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	if err := dashboard.Stop(); err == nil {
		t.Error("Expected error when stopping twice")
	}
}

func TestProgressBroadcast(t *testing.T) {
	dashboard := startTestDashboard(t, DefaultDashboardConfig())
	conn := dialTestDashboard(t, dashboard)

	// Give the server a moment to register the connection before publishing.
	waitForConnections(t, dashboard, 1)

	sent := evolutionarysudokusolver.Progress{
		Island:       2,
		Generation:   17,
		BestFitness:  9,
		MutationRate: 0.25,
		Stagnation:   4,
		Restarts:     1,
	}
	dashboard.PublishProgress(sent)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var msg progressMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Invalid progress message: %v", err)
	}

	if msg.Type != "progress" {
		t.Errorf("Expected type progress, got %q", msg.Type)
	}

	if msg.Data != sent {
		t.Errorf("Progress round-trip mismatch: sent %+v, got %+v", sent, msg.Data)
	}
}

func TestResultBroadcast(t *testing.T) {
	dashboard := startTestDashboard(t, DefaultDashboardConfig())
	conn := dialTestDashboard(t, dashboard)
	waitForConnections(t, dashboard, 1)

	board := sudokuboard.Board{}
	board[0][0] = 5

	dashboard.PublishResult(&evolutionarysudokusolver.Result{
		Board:       board,
		Fitness:     0,
		Solved:      true,
		Generations: 42,
		Islands:     1,
		Elapsed:     1500 * time.Millisecond,
	})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var msg resultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Invalid result message: %v", err)
	}

	if msg.Type != "result" || !msg.Solved || msg.Generations != 42 {
		t.Errorf("Unexpected result message: %+v", msg)
	}

	if len(msg.Board) != 81 || msg.Board[0] != '5' {
		t.Errorf("Unexpected board encoding: %q", msg.Board)
	}

	if msg.ElapsedMs != 1500 {
		t.Errorf("Expected elapsed 1500ms, got %d", msg.ElapsedMs)
	}
}

func TestUnsubscribeStopsMessages(t *testing.T) {
	dashboard := startTestDashboard(t, DefaultDashboardConfig())
	conn := dialTestDashboard(t, dashboard)
	waitForConnections(t, dashboard, 1)

	if err := conn.WriteJSON(map[string]interface{}{"type": "unsubscribe"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	// Wait until the unsubscribe has been applied server-side.
	deadline := time.Now().Add(2 * time.Second)
	for {
		dashboard.connMutex.RLock()
		var subscribed bool
		for _, c := range dashboard.connections {
			c.mutex.RLock()
			subscribed = c.Subscribed
			c.mutex.RUnlock()
		}
		dashboard.connMutex.RUnlock()

		if !subscribed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Unsubscribe was never applied")
		}
		time.Sleep(10 * time.Millisecond)
	}

	dashboard.PublishProgress(evolutionarysudokusolver.Progress{Generation: 1})

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected no message after unsubscribe")
	}
}

func TestProgressFuncFeedsDashboard(t *testing.T) {
	dashboard := startTestDashboard(t, DefaultDashboardConfig())

	report := dashboard.ProgressFunc()
	report(evolutionarysudokusolver.Progress{Generation: 3})
	report(evolutionarysudokusolver.Progress{Generation: 4})

	stats := dashboard.GetStats()
	if reports := stats["progress_reports"].(int64); reports != 2 {
		t.Errorf("Expected 2 progress reports, got %d", reports)
	}
}

func TestConnectionLimit(t *testing.T) {
	config := DefaultDashboardConfig()
	config.MaxConnections = 1

	dashboard := startTestDashboard(t, config)
	dialTestDashboard(t, dashboard)
	waitForConnections(t, dashboard, 1)

	url := fmt.Sprintf("ws://%s/ws", dashboard.Addr())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Error("Expected dial to fail once the connection limit is reached")
	}
}

func TestGetStats(t *testing.T) {
	dashboard := startTestDashboard(t, DefaultDashboardConfig())

	dashboard.PublishProgress(evolutionarysudokusolver.Progress{})
	dashboard.PublishResult(&evolutionarysudokusolver.Result{})

	stats := dashboard.GetStats()
	if stats["progress_reports"].(int64) != 1 {
		t.Error("Expected 1 progress report in stats")
	}
	if stats["results_published"].(int64) != 1 {
		t.Error("Expected 1 published result in stats")
	}
	if stats["active_connections"].(int64) != 0 {
		t.Error("Expected no active connections")
	}
}

func waitForConnections(t *testing.T, dashboard *Dashboard, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		dashboard.connMutex.RLock()
		got := len(dashboard.connections)
		dashboard.connMutex.RUnlock()

		if got >= want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d connections, have %d", want, got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
