// Package control serves the risk engine's HTTP control surface: a
// read-only report endpoint, a websocket stream of the same report,
// and operator actions (pause/resume/emergency-close-all).
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"riskengine/internal/engine"
)

// actionResponse is returned by every operator-action endpoint, tagged
// with a correlation id for tracing the action through logs.
type actionResponse struct {
	CorrelationID string `json:"correlationId"`
	Status        string `json:"status"`
	Detail        string `json:"detail,omitempty"`
}

// Surface serves the risk engine's control endpoints and broadcasts
// its report over a websocket stream.
type Surface struct {
	engine *engine.Engine
	server *http.Server

	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	broadcast chan []byte
	stop      chan struct{}

	mu      sync.Mutex
	running bool
}

// New builds a Surface bound to port, wiring the routes described in
// spec.md §6's control-surface responsibilities.
func New(e *engine.Engine, port int) *Surface {
	s := &Surface{
		engine:    e,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 100),
		stop:      make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/report", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/api/pause", s.handlePause).Methods(http.MethodPost)
	r.HandleFunc("/api/resume", s.handleResume).Methods(http.MethodPost)
	r.HandleFunc("/api/emergency-close-all", s.handleEmergencyCloseAll).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving and the report-broadcast loop.
func (s *Surface) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("control surface is already running")
	}

	go s.reportCollector()
	go s.clientBroadcaster()

	go func() {
		log.Info().Str("address", s.server.Addr).Msg("starting risk engine control surface")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("control surface server failed")
		}
	}()

	s.running = true
	return nil
}

// Stop shuts the surface down, closing every websocket client.
func (s *Surface) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	close(s.stop)

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}

	s.running = false
	return nil
}

func (s *Surface) reportCollector() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			data, err := json.Marshal(s.engine.GetRiskReport())
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal risk report for broadcast")
				continue
			}
			select {
			case s.broadcast <- data:
			default:
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Surface) clientBroadcaster() {
	for {
		select {
		case data := <-s.broadcast:
			s.clientsMu.RLock()
			for client := range s.clients {
				if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
					client.Close()
					delete(s.clients, client)
				}
			}
			s.clientsMu.RUnlock()
		case <-s.stop:
			return
		}
	}
}

func (s *Surface) handleReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.engine.GetRiskReport())
}

func (s *Surface) handlePause(w http.ResponseWriter, r *http.Request) {
	s.engine.Pause()
	s.respondAction(w, "paused", "")
}

func (s *Surface) handleResume(w http.ResponseWriter, r *http.Request) {
	s.engine.Resume()
	s.respondAction(w, "resumed", "")
}

func (s *Surface) handleEmergencyCloseAll(w http.ResponseWriter, r *http.Request) {
	closed := s.engine.EmergencyCloseAll()
	s.respondAction(w, "emergency-close-all", fmt.Sprintf("%d positions closed", len(closed)))
}

func (s *Surface) respondAction(w http.ResponseWriter, status, detail string) {
	resp := actionResponse{CorrelationID: uuid.New().String(), Status: status, Detail: detail}
	log.Info().Str("correlation_id", resp.CorrelationID).Str("status", status).Msg("control action executed")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Surface) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}
	defer conn.Close()

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	if data, err := json.Marshal(s.engine.GetRiskReport()); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.clientsMu.Lock()
	delete(s.clients, conn)
	s.clientsMu.Unlock()
}
