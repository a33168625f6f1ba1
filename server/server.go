// Package server exposes the waitline HTTP API and the websocket fanout
// that rebroadcasts every bus event to connected viewers.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waitline/waitline/bus"
	"github.com/waitline/waitline/config"
	"github.com/waitline/waitline/queue"
)

// MaxClients bounds the number of concurrent websocket viewers.
const MaxClients = 1000

// Server is the waitline process hub: it owns the HTTP server, the
// websocket client registry, and the bus consumer feeding the fanout.
type Server struct {
	cfg    *config.Config
	db     *sql.DB
	logger *zap.SugaredLogger

	manager   *queue.Manager
	gate      *queue.Gate
	lifecycle *queue.Lifecycle
	estimator *queue.Estimator
	history   *queue.History
	bus       *bus.Bus

	mux        *http.ServeMux
	httpServer *http.Server

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the full service around an open, migrated database.
func New(cfg *config.Config, db *sql.DB, logger *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	store := queue.NewStore(db)
	estimator := queue.NewEstimator(store, time.Duration(cfg.Estimator.LookbackHours)*time.Hour)
	eventBus := bus.New(db, logger,
		time.Duration(cfg.Bus.PollIntervalMS)*time.Millisecond,
		time.Duration(cfg.Bus.SendTimeoutMS)*time.Millisecond,
	)

	s := &Server{
		cfg:        cfg,
		db:         db,
		logger:     logger,
		manager:    queue.NewManager(store, logger),
		gate:       queue.NewGate(store, estimator, eventBus, logger),
		lifecycle:  queue.NewLifecycle(store, eventBus, logger),
		estimator:  estimator,
		history:    queue.NewHistory(store, time.Duration(cfg.Estimator.LookbackHours)*time.Hour),
		bus:        eventBus,
		mux:        http.NewServeMux(),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start launches the bus consumer, the hub, the fanout, and the HTTP
// listener. It blocks until the listener exits.
func (s *Server) Start() error {
	if err := s.bus.Start(s.ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runFanout()
	}()

	if s.logger != nil {
		s.logger.Infow("Server listening",
			"addr", s.httpServer.Addr,
		)
	}

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains the HTTP server, stops the hub and fanout, and halts
// the bus consumer.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.cancel()
	s.bus.Stop()
	s.wg.Wait()

	s.mu.Lock()
	for client := range s.clients {
		client.close()
		delete(s.clients, client)
	}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Infow("Server stopped")
	}
	return err
}

// Run is the hub loop: it serializes viewer registration and
// deregistration against the shared registry.
func (s *Server) Run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Warnw("Max clients reached, rejecting connection",
				"client_id", client.id,
				"max_clients", MaxClients,
			)
		}
		client.close()
		return
	}
	s.clients[client] = true
	count := len(s.clients)
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Infow("Viewer connected",
			"client_id", client.id,
			"total_clients", count,
		)
	}
}

func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
	}
	count := len(s.clients)
	s.mu.Unlock()

	client.close()

	if s.logger != nil {
		s.logger.Infow("Viewer disconnected",
			"client_id", client.id,
			"total_clients", count,
		)
	}
}
