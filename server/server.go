// Package server exposes the service over a websocket, with health and
// Prometheus endpoints alongside.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xhad/carescope/internal/logger"
	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/pkg/agent"
	"github.com/xhad/carescope/pkg/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Request is one inbound websocket message. Type is query, desert,
// validate or search. Content holds the query text or facility name.
type Request struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Intent    string `json:"intent,omitempty"`
	Specialty string `json:"specialty,omitempty"`
	Region    string `json:"region,omitempty"`
	K         int    `json:"k,omitempty"`
}

// Message is one outbound websocket message: status, stream, response,
// result or error.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

type Config struct {
	Addr      string
	Streaming bool
	// QueryTimeout bounds one request. Zero means no bound beyond the
	// pipeline's own stage timeouts.
	QueryTimeout time.Duration
}

type WSServer struct {
	config Config
	svc    *service.Service
}

func NewWSServer(svc *service.Service, config Config) *WSServer {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	return &WSServer{config: config, svc: svc}
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msgType, content string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(Message{Type: msgType, Content: content, Data: data}); err != nil {
		logger.Warn("Error sending message: %v", err)
	}
}

func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.svc.Metrics().Handler())
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.config.Addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting WebSocket server on %s", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *WSServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	version := s.svc.Version()
	if version == "" {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("index not built"))
		return
	}
	w.Header().Set("X-Index-Version", version)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	// In-flight handlers are cancelled before the connection closes.
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &conn{ws: ws}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("Error reading message: %v", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.send("error", fmt.Sprintf("invalid message: %v", err), nil)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, c, req)
		}()
	}
}

func (s *WSServer) handleMessage(ctx context.Context, c *conn, req Request) {
	if s.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.QueryTimeout)
		defer cancel()
	}

	switch req.Type {
	case "query", "":
		s.handleQuery(ctx, c, req)

	case "desert":
		if req.Region == "" {
			coverage, err := s.svc.Coverage(req.Specialty)
			if err != nil {
				c.send("error", err.Error(), nil)
				return
			}
			c.send("result", fmt.Sprintf("%s coverage across %d regions", req.Specialty, len(coverage)), coverage)
			return
		}
		res, err := s.svc.DetectDesert(req.Specialty, req.Region)
		if err != nil {
			c.send("error", err.Error(), nil)
			return
		}
		c.send("result", fmt.Sprintf("%s in %s: %s", req.Specialty, req.Region, res.Severity), res)

	case "validate":
		finding, err := s.svc.ValidateFacility(req.Content)
		if err != nil {
			c.send("error", err.Error(), nil)
			return
		}
		c.send("result", fmt.Sprintf("%s: completeness %.2f", finding.Name, finding.CompletenessScore), finding)

	case "search":
		k := req.K
		if k == 0 {
			k = 5
		}
		results, err := s.svc.Search(ctx, req.Content, k)
		if err != nil {
			c.send("error", err.Error(), nil)
			return
		}
		c.send("result", fmt.Sprintf("%d facilities", len(results)), results)

	default:
		c.send("error", fmt.Sprintf("unknown message type %q", req.Type), nil)
	}
}

func (s *WSServer) handleQuery(ctx context.Context, c *conn, req Request) {
	var hint *models.Intent
	if req.Intent != "" {
		if intent, ok := models.ParseIntent(req.Intent); ok {
			hint = &intent
		}
	}

	c.send("status", "Processing query", nil)

	var (
		res *agent.Result
		err error
	)
	if s.config.Streaming {
		res, err = s.svc.ProcessStream(ctx, req.Content, hint, func(chunk string) {
			c.send("stream", chunk, nil)
		})
	} else {
		res, err = s.svc.Process(ctx, req.Content, hint)
	}
	if err != nil {
		// The partial result still carries the trace up to the failure.
		c.send("error", err.Error(), res)
		return
	}
	c.send("response", res.Answer, res)
}
