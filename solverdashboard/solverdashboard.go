package solverdashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudokulab/sudoku-evolution/evolutionarysudokusolver"
	"github.com/sudokulab/sudoku-evolution/sudokuboard"
)

// DashboardConfig contains configuration for the progress dashboard
type DashboardConfig struct {
	Port           int // 0 picks a free port
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
	SendQueueSize  int
	EnableLogging  bool
}

// DefaultDashboardConfig returns default configuration
func DefaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		Port:           8080,
		MaxConnections: 100,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		SendQueueSize:  256,
		EnableLogging:  false,
	}
}

// ClientConnection represents one WebSocket subscriber
type ClientConnection struct {
	ID         string
	Conn       *websocket.Conn
	SendQueue  chan []byte
	Subscribed bool
	LastPong   time.Time
	mutex      sync.RWMutex
}

// DashboardStatistics tracks dashboard activity
type DashboardStatistics struct {
	StartTime         time.Time
	ActiveConnections int64
	MessagesSent      int64
	MessagesDropped   int64
	ProgressReports   int64
	ResultsPublished  int64
}

// Dashboard streams solver progress to WebSocket subscribers. Each connected
// client receives a JSON message per generation report and a final message
// when a solve completes.
type Dashboard struct {
	config      DashboardConfig
	connections map[string]*ClientConnection
	statistics  DashboardStatistics
	httpServer  *http.Server
	listener    net.Listener
	wsUpgrader  websocket.Upgrader
	running     bool
	ctx         context.Context
	cancel      context.CancelFunc
	connSeq     int64
	mutex       sync.RWMutex
	connMutex   sync.RWMutex
	wg          sync.WaitGroup
}

type progressMessage struct {
	Type string                            `json:"type"`
	Data evolutionarysudokusolver.Progress `json:"data"`
}

type resultMessage struct {
	Type        string `json:"type"`
	Board       string `json:"board"`
	Fitness     int    `json:"fitness"`
	Solved      bool   `json:"solved"`
	Generations int    `json:"generations"`
	Restarts    int    `json:"restarts"`
	Islands     int    `json:"islands"`
	ElapsedMs   int64  `json:"elapsed_ms"`
}

// NewDashboard creates a new progress dashboard
func NewDashboard(config DashboardConfig) (*Dashboard, error) {
	if config.Port < 0 {
		return nil, errors.New("port must not be negative")
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = 100
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = 2 * config.PingInterval
	}
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = 256
	}

	if config.PongTimeout <= config.PingInterval {
		return nil, errors.New("pong timeout must exceed ping interval")
	}

	ctx, cancel := context.WithCancel(context.Background())

	dashboard := &Dashboard{
		config:      config,
		connections: make(map[string]*ClientConnection),
		statistics: DashboardStatistics{
			StartTime: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // In production, implement proper origin checking
			},
		},
	}

	return dashboard, nil
}

// Start begins serving the WebSocket endpoint
func (d *Dashboard) Start() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.running {
		return errors.New("dashboard is already running")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.handleWebSocket)
	mux.HandleFunc("/api/statistics", d.handleStatistics)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", d.config.Port))
	if err != nil {
		return err
	}

	d.listener = listener
	d.httpServer = &http.Server{Handler: mux}
	d.running = true

	d.wg.Add(1)
	go d.connectionManager()

	go func() {
		if err := d.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("dashboard server error: %v", err)
		}
	}()

	if d.config.EnableLogging {
		log.Printf("solver dashboard listening on %s", listener.Addr())
	}

	return nil
}

// Stop shuts down the server and closes all client connections
func (d *Dashboard) Stop() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.running {
		return errors.New("dashboard is not running")
	}

	d.running = false
	d.cancel()

	d.connMutex.Lock()
	for _, conn := range d.connections {
		conn.Conn.Close()
	}
	d.connMutex.Unlock()

	if d.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.httpServer.Shutdown(ctx)
	}

	d.wg.Wait()

	if d.config.EnableLogging {
		log.Printf("solver dashboard stopped")
	}

	return nil
}

// Addr returns the address the dashboard is listening on
func (d *Dashboard) Addr() net.Addr {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// ProgressFunc returns a callback suitable for
// evolutionarysudokusolver.Config.OnProgress that broadcasts every
// generation report to subscribed clients.
func (d *Dashboard) ProgressFunc() evolutionarysudokusolver.ProgressFunc {
	return func(progress evolutionarysudokusolver.Progress) {
		d.PublishProgress(progress)
	}
}

// PublishProgress broadcasts a generation report to all subscribers
func (d *Dashboard) PublishProgress(progress evolutionarysudokusolver.Progress) {
	data, err := json.Marshal(progressMessage{Type: "progress", Data: progress})
	if err != nil {
		return
	}

	atomic.AddInt64(&d.statistics.ProgressReports, 1)
	d.broadcast(data)
}

// PublishResult broadcasts a completed solve to all subscribers
func (d *Dashboard) PublishResult(result *evolutionarysudokusolver.Result) {
	if result == nil {
		return
	}

	data, err := json.Marshal(resultMessage{
		Type:        "result",
		Board:       boardString(result.Board),
		Fitness:     result.Fitness,
		Solved:      result.Solved,
		Generations: result.Generations,
		Restarts:    result.Restarts,
		Islands:     result.Islands,
		ElapsedMs:   result.Elapsed.Milliseconds(),
	})
	if err != nil {
		return
	}

	atomic.AddInt64(&d.statistics.ResultsPublished, 1)
	d.broadcast(data)
}

func boardString(board sudokuboard.Board) string {
	cells := board.Slice()
	buf := make([]byte, len(cells))
	for i, v := range cells {
		buf[i] = byte('0' + v)
	}
	return string(buf)
}

// broadcast queues a message on every subscribed connection. Slow clients
// drop messages rather than block the solver.
func (d *Dashboard) broadcast(data []byte) {
	d.connMutex.RLock()
	defer d.connMutex.RUnlock()

	for _, conn := range d.connections {
		conn.mutex.RLock()
		subscribed := conn.Subscribed
		conn.mutex.RUnlock()

		if !subscribed {
			continue
		}

		select {
		case conn.SendQueue <- data:
			atomic.AddInt64(&d.statistics.MessagesSent, 1)
		default:
			atomic.AddInt64(&d.statistics.MessagesDropped, 1)
		}
	}
}

// connectionManager pings clients and drops the ones that stopped answering
func (d *Dashboard) connectionManager() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.dropStaleConnections()
		}
	}
}

func (d *Dashboard) dropStaleConnections() {
	cutoff := time.Now().Add(-d.config.PongTimeout)

	d.connMutex.Lock()
	defer d.connMutex.Unlock()

	for id, conn := range d.connections {
		conn.mutex.RLock()
		stale := conn.LastPong.Before(cutoff)
		conn.mutex.RUnlock()

		if stale {
			conn.Conn.Close()
			delete(d.connections, id)
			atomic.AddInt64(&d.statistics.ActiveConnections, -1)
		}
	}
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	d.connMutex.RLock()
	full := len(d.connections) >= d.config.MaxConnections
	d.connMutex.RUnlock()

	if full {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := d.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	client := &ClientConnection{
		ID:         fmt.Sprintf("conn_%d", atomic.AddInt64(&d.connSeq, 1)),
		Conn:       conn,
		SendQueue:  make(chan []byte, d.config.SendQueueSize),
		Subscribed: true,
		LastPong:   time.Now(),
	}

	conn.SetPongHandler(func(string) error {
		client.mutex.Lock()
		client.LastPong = time.Now()
		client.mutex.Unlock()
		return nil
	})

	d.connMutex.Lock()
	d.connections[client.ID] = client
	atomic.AddInt64(&d.statistics.ActiveConnections, 1)
	d.connMutex.Unlock()

	go d.handleConnection(client)
}

func (d *Dashboard) handleConnection(client *ClientConnection) {
	defer func() {
		client.Conn.Close()
		d.connMutex.Lock()
		if _, ok := d.connections[client.ID]; ok {
			delete(d.connections, client.ID)
			atomic.AddInt64(&d.statistics.ActiveConnections, -1)
		}
		d.connMutex.Unlock()
	}()

	go d.connectionSender(client)

	for {
		var msg map[string]interface{}
		if err := client.Conn.ReadJSON(&msg); err != nil {
			return
		}

		d.handleMessage(client, msg)
	}
}

func (d *Dashboard) connectionSender(client *ClientConnection) {
	ticker := time.NewTicker(d.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case data := <-client.SendQueue:
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (d *Dashboard) handleMessage(client *ClientConnection, msg map[string]interface{}) {
	msgType, ok := msg["type"].(string)
	if !ok {
		return
	}

	switch msgType {
	case "subscribe":
		client.mutex.Lock()
		client.Subscribed = true
		client.mutex.Unlock()
	case "unsubscribe":
		client.mutex.Lock()
		client.Subscribed = false
		client.mutex.Unlock()
	case "pong":
		client.mutex.Lock()
		client.LastPong = time.Now()
		client.mutex.Unlock()
	}
}

func (d *Dashboard) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats := d.GetStats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// GetStats returns current dashboard statistics
func (d *Dashboard) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"start_time":         d.statistics.StartTime,
		"active_connections": atomic.LoadInt64(&d.statistics.ActiveConnections),
		"messages_sent":      atomic.LoadInt64(&d.statistics.MessagesSent),
		"messages_dropped":   atomic.LoadInt64(&d.statistics.MessagesDropped),
		"progress_reports":   atomic.LoadInt64(&d.statistics.ProgressReports),
		"results_published":  atomic.LoadInt64(&d.statistics.ResultsPublished),
	}
}
