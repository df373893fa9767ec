// Package relay serves the shared sync document to pincafe devices.
//
// Each tenant (one restaurant) owns one document. Devices upload it with
// PUT /api/documents/{tenant} and follow changes over a websocket at
// /ws/{tenant}, which sends the current document on connect and then every
// new version. Documents are persisted in a bbolt file so a relay restart
// does not lose the shared state.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/websocket"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var bucketDocuments = []byte("documents")

// maxDocumentBytes bounds an uploaded document.
const maxDocumentBytes = 32 << 20

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default ":8787"; use "127.0.0.1:0" for a random port).
	Addr string

	// DBPath of the bbolt file (default "relay.db").
	DBPath string

	Logger *zap.Logger
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:   ":8787",
		DBPath: "relay.db",
	}
}

type update struct {
	tenant string
	data   []byte
}

// Server stores documents and fans them out to websocket clients.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	db       *bolt.DB

	// clients by tenant
	clients   map[string]map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan update

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
}

// NewServer opens the document database. Start begins serving.
func NewServer(config *Config) (*Server, error) {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	addr := config.Addr
	if addr == "" {
		addr = defaults.Addr
	}
	dbPath := config.DBPath
	if dbPath == "" {
		dbPath = defaults.DBPath
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create relay directory: %w", err)
	}
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open relay database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize relay database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		db:        db,
		clients:   make(map[string]map[*websocket.Conn]bool),
		broadcast: make(chan update, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.Named("relay"),
	}, nil
}

// Handler returns the HTTP routes. Start serves them on Addr.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/documents/{tenant}", s.handlePut)
	mux.HandleFunc("GET /api/documents/{tenant}", s.handleGet)
	mux.HandleFunc("GET /ws/{tenant}", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start begins the HTTP server and the broadcast loop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("relay listening", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("relay server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop closes client connections, shuts the HTTP server down and closes the
// database.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for _, conns := range s.clients {
		for conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "relay shutting down")
		}
	}
	s.clients = make(map[string]map[*websocket.Conn]bool)
	s.clientsMu.Unlock()

	var shutdownErr error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("relay shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	if err := s.db.Close(); err != nil && shutdownErr == nil {
		shutdownErr = fmt.Errorf("failed to close relay database: %w", err)
	}
	s.logger.Info("relay stopped")
	return shutdownErr
}

// GetAddr returns the listening address.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	n := 0
	for _, conns := range s.clients {
		n += len(conns)
	}
	return n
}

// Document returns the stored document of tenant, or nil.
func (s *Server) Document(tenant string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketDocuments).Get([]byte(tenant)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return out, nil
}

func (s *Server) putDocument(tenant string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(tenant), data)
	})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		http.Error(w, "document too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}

	var probe struct {
		LastUpdate *int64 `json:"lastUpdate"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		http.Error(w, "document is not valid JSON", http.StatusBadRequest)
		return
	}
	if probe.LastUpdate == nil {
		http.Error(w, "document has no lastUpdate", http.StatusBadRequest)
		return
	}

	if err := s.putDocument(tenant, data); err != nil {
		s.logger.Error("failed to store document", zap.String("tenant", tenant), zap.Error(err))
		http.Error(w, "failed to store document", http.StatusServiceUnavailable)
		return
	}

	s.logger.Debug("document stored",
		zap.String("tenant", tenant),
		zap.Int64("last_update", *probe.LastUpdate),
		zap.Int("bytes", len(data)))

	select {
	case s.broadcast <- update{tenant: tenant, data: data}:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("broadcast channel full, dropping update", zap.String("tenant", tenant))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	data, err := s.Document(r.PathValue("tenant"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if data == nil {
		http.Error(w, "no document", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case u := <-s.broadcast:
			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients[u.tenant]))
			for conn := range s.clients[u.tenant] {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range conns {
				if err := s.send(conn, u.data); err != nil {
					s.logger.Debug("failed to send to client", zap.String("tenant", u.tenant), zap.Error(err))
					s.removeClient(u.tenant, conn)
				}
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	// Register before reading the current document so no update is missed
	// between the two.
	s.clientsMu.Lock()
	if s.clients[tenant] == nil {
		s.clients[tenant] = make(map[*websocket.Conn]bool)
	}
	s.clients[tenant][conn] = true
	s.clientsMu.Unlock()

	s.logger.Debug("client connected", zap.String("tenant", tenant), zap.Int("clients", s.ClientCount()))

	data, err := s.Document(tenant)
	if err != nil {
		s.logger.Error("failed to load document", zap.String("tenant", tenant), zap.Error(err))
	} else if data != nil {
		if err := s.send(conn, data); err != nil {
			s.removeClient(tenant, conn)
			return
		}
	}

	s.readLoop(tenant, conn)
}

// readLoop blocks until the client goes away. Clients never send anything.
func (s *Server) readLoop(tenant string, conn *websocket.Conn) {
	defer s.removeClient(tenant, conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(tenant string, conn *websocket.Conn) {
	s.clientsMu.Lock()
	conns := s.clients[tenant]
	if _, ok := conns[conn]; !ok {
		s.clientsMu.Unlock()
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(s.clients, tenant)
	}
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Debug("client disconnected", zap.String("tenant", tenant))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}
