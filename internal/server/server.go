package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mblsha/miniware-mdp-m01/internal/device"
	"github.com/mblsha/miniware-mdp-m01/internal/logger"
	"github.com/mblsha/miniware-mdp-m01/internal/mdp"
	"github.com/mblsha/miniware-mdp-m01/internal/monitor"
)

// Server pushes instrument state to WebSocket clients and exposes the
// command surface over HTTP.
type Server struct {
	cfg     *Config
	session *device.Session
	webFS   fs.FS
	logger  *logger.Logger
	metrics *monitor.Metrics

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients. Exactly one of
// the optional members is set per frame.
type Frame struct {
	State  *device.Snapshot `json:"state,omitempty"`
	Event  *EventMsg        `json:"event,omitempty"`
	Config *Config          `json:"config,omitempty"`
	Stamp  int64            `json:"stamp"` // Unix ms
}

// EventMsg is the wire form of an engine notification.
type EventMsg struct {
	Type    string `json:"type"`
	Channel int    `json:"channel,omitempty"`
	Class   string `json:"class,omitempty"`
	ErrFlag bool   `json:"errFlag,omitempty"`
}

// New creates a new Server around a running session.
func New(cfg *Config, session *device.Session, webFS fs.FS) *Server {
	s := &Server{
		cfg:     cfg,
		session: session,
		webFS:   webFS,
		logger: logger.New(logger.Config{
			Enabled:    cfg.Logging.Enabled,
			Path:       cfg.Logging.Path,
			IntervalMs: cfg.Logging.Interval,
		}),
		metrics: monitor.New(),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	session.OnEvent(s.onEvent)
	return s
}

// Run starts the HTTP server and the broadcast loop.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/wave", s.handleWave)
	mux.HandleFunc("/api/command/", s.handleCommand)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/health", s.handleHealth)

	go s.broadcastLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	return srv.ListenAndServe()
}

// broadcastLoop pushes state snapshots to clients, the CSV logger and the
// metrics collectors at the configured rate.
func (s *Server) broadcastLoop(ctx context.Context) {
	hz := s.cfg.Server.BroadcastHz
	if hz <= 0 {
		hz = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Close()
			return
		case <-ticker.C:
			snap := s.session.Snapshot()
			s.broadcast(Frame{State: &snap, Stamp: snap.Stamp})
			s.logger.Record(snap)
			s.metrics.Update(snap)
			s.metrics.SetClients(s.clientCount())
		}
	}
}

// onEvent forwards engine notifications to clients as they happen; the next
// state frame carries the matching data.
func (s *Server) onEvent(ev mdp.Event) {
	msg := EventMsg{
		Type:    ev.Type.String(),
		Channel: ev.Channel,
		ErrFlag: ev.ErrFlag,
	}
	if ev.Type == mdp.EventMachineClass {
		msg.Class = ev.Class.String()
	}
	s.broadcast(Frame{Event: &msg, Stamp: time.Now().UnixMilli()})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", total)

	// Send config plus the current state so the page renders immediately.
	snap := s.session.Snapshot()
	first := Frame{Config: s.cfg, State: &snap, Stamp: snap.Stamp}
	if data, err := json.Marshal(first); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (handle incoming messages / keep-alive)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			remaining := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", remaining)
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	snap := s.session.Snapshot()
	writeJSON(w, snap)
}

func (s *Server) handleWave(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.session.WaveSnapshot())

	case http.MethodPost:
		var req struct {
			Paused *bool `json:"paused"`
			Clear  bool  `json:"clear"`
		}
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if req.Paused != nil {
			s.session.SetWavePaused(*req.Paused)
		}
		if req.Clear {
			s.session.ClearWave()
		}
		writeOK(w)

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		s.logger.SetEnabled(s.cfg.Logging.Enabled)
		s.broadcast(Frame{Config: s.cfg, Stamp: time.Now().UnixMilli()})
		writeOK(w)

	default:
		http.Error(w, "method not allowed", 405)
	}
}

// handleCommand dispatches POST /api/command/<name> to the session.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}

	name := r.URL.Path[len("/api/command/"):]
	if err := s.runCommand(name, r); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	writeOK(w)
}

func (s *Server) runCommand(name string, r *http.Request) error {
	switch name {
	case "select-channel":
		var req struct {
			Channel int `json:"channel"`
		}
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		return s.session.SelectChannel(req.Channel)

	case "set-voltage", "set-current":
		var req struct {
			Channel    int    `json:"channel"`
			Millivolts uint16 `json:"millivolts"`
			Milliamps  uint16 `json:"milliamps"`
		}
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		if name == "set-voltage" {
			return s.session.SetVoltage(req.Channel, req.Millivolts, req.Milliamps)
		}
		return s.session.SetCurrent(req.Channel, req.Millivolts, req.Milliamps)

	case "set-output":
		var req struct {
			Channel int  `json:"channel"`
			On      bool `json:"on"`
		}
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		return s.session.SetOutput(req.Channel, req.On)

	case "set-address":
		var req struct {
			Channel   int    `json:"channel"`
			Address   []byte `json:"address"`
			Frequency uint16 `json:"frequency"`
		}
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		if len(req.Address) != 5 {
			return fmt.Errorf("address must be 5 bytes, got %d", len(req.Address))
		}
		var addr [5]byte
		copy(addr[:], req.Address)
		return s.session.SetAddress(req.Channel, addr, req.Frequency)

	case "refresh-addresses":
		return s.session.RequestAddresses()

	case "refresh-machine":
		return s.session.RequestMachineType()

	case "rgb":
		var req struct {
			On bool `json:"on"`
		}
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		return s.session.SetRGB(req.On)

	case "auto-match":
		var req struct {
			On bool `json:"on"`
		}
		if err := decodeBody(r, &req); err != nil {
			return err
		}
		if req.On {
			return s.session.StartAutoMatch()
		}
		return s.session.StopAutoMatch()

	case "reset-dfu":
		return s.session.ResetToDFU()
	}

	return fmt.Errorf("unknown command %q", name)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"connected": snap.Connected,
		"provider":  snap.Provider,
	})
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func (s *Server) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("bad request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
