// Package stream pushes the live statistics view to websocket subscribers
// on a fixed cadence and exposes the same payload as a plain JSON route.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/derad-network/derad/async"
	"github.com/derad-network/derad/config/params"
	"github.com/derad-network/derad/network/httputil"
	"github.com/derad-network/derad/tracker/stats"
)

var log = logrus.WithField("prefix", "stream")

// Config holds the stream service settings.
type Config struct {
	Address        string
	Register       *stats.Register
	AllowedOrigins []string
}

// Service owns the websocket hub and the broadcast timer. Subscribers that
// cannot keep up with the broadcast cadence are dropped rather than allowed
// to stall the loop.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *Config
	server   *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	failStatus error
}

// New sets up the stream service for a given host:port address.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		clients: make(map[*client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws/stats", s.subscribeHandler)
	r.HandleFunc("/stats", s.statsHandler).Methods(http.MethodGet)
	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(r)
	s.server = &http.Server{Addr: cfg.Address, Handler: handler}
	return s
}

// Start begins serving subscribers and broadcasting the stats view.
func (s *Service) Start() {
	log.WithField("endpoint", s.server.Addr).Info("Starting live stats stream")
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen to host:port :%s: %v", s.server.Addr, err)
			s.failStatus = err
		}
	}()
	async.RunEvery(s.ctx, params.DeradConfig().BroadcastInterval, s.broadcastOnce)
}

// Stop disconnects every subscriber and shuts the server down gracefully.
func (s *Service) Stop() error {
	log.Info("Stopping live stats stream")
	s.cancel()
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		s.removeClient(c)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status checks for any service failure conditions.
func (s *Service) Status() error {
	if s.failStatus != nil {
		return s.failStatus
	}
	return nil
}

// ClientCount returns the number of connected subscribers.
func (s *Service) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Service) subscribeHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("Could not upgrade stats subscriber")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	s.addClient(c)
	go c.writePump()
	go c.readPump(s)
}

func (s *Service) statsHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.cfg.Register.CurrentView(r.Context())
	if err != nil {
		log.WithError(err).Warn("Could not assemble stats view")
		httputil.HandleError(w, "could not assemble stats", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		log.WithError(err).Debug("Could not write stats response")
	}
}

// broadcastOnce pushes one view to every subscriber. A full send buffer
// marks a subscriber as stale and evicts it.
func (s *Service) broadcastOnce() {
	if s.ClientCount() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, time.Second)
	defer cancel()
	view, err := s.cfg.Register.CurrentView(ctx)
	if err != nil {
		log.WithError(err).Warn("Could not assemble stats view")
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		log.WithError(err).Warn("Could not encode stats view")
		return
	}

	var stale []*client
	s.mu.Lock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			stale = append(stale, c)
		}
	}
	s.mu.Unlock()
	for _, c := range stale {
		s.removeClient(c)
		log.Debug("Dropped slow stats subscriber")
	}
	broadcasts.Inc()
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
	subscribers.Set(float64(len(s.clients)))
}

// removeClient drops a subscriber and closes its send channel exactly once,
// the channel close is what terminates the write pump.
func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	_, present := s.clients[c]
	if present {
		delete(s.clients, c)
		close(c.send)
	}
	n := len(s.clients)
	s.mu.Unlock()
	if present {
		subscribers.Set(float64(n))
	}
}

func (s *Service) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}
