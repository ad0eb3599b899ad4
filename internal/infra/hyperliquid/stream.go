package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"perp_go/internal/backoff"
	"perp_go/internal/domain"
	"perp_go/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	maxRetries   = 10
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	maxBackoff   = 60 * time.Second
)

// PriceSink receives every allMids frame. service.PriceStore implements it.
type PriceSink interface {
	Push(mids domain.PriceMap)
}

// ConnectionCounter tracks open sockets. infra.Metrics implements it.
type ConnectionCounter interface {
	IncrementConnections()
	DecrementConnections()
}

// Stream keeps an allMids websocket subscription open and reconnects with
// exponential backoff.
type Stream struct {
	url     string
	sink    PriceSink
	counter ConnectionCounter

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

var _ domain.PriceStreamer = (*Stream)(nil)

// NewStream creates a stream for url. counter may be nil.
func NewStream(url string, sink PriceSink, counter ConnectionCounter) *Stream {
	return &Stream{
		url:     url,
		sink:    sink,
		counter: counter,
		logger:  slog.Default().With("module", "hyperliquid_stream"),
	}
}

// Connect starts the connection loop and returns immediately.
func (s *Stream) Connect(ctx context.Context) error {
	if s.url == "" {
		return &domain.ConfigError{Field: "api.hyperliquid.ws_url", Err: fmt.Errorf("required")}
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.connectionLoop(ctx)
	return nil
}

// IsConnected reports whether a socket is currently open.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Disconnect stops the loop and waits for it to exit.
func (s *Stream) Disconnect() {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeConnection()
	s.wg.Wait()
}

func (s *Stream) connectionLoop(ctx context.Context) {
	defer s.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			s.logger.Warn("Stream connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := backoff.Calculate(retryCount, maxBackoff)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		pingCtx, stopPing := context.WithCancel(ctx)
		go s.pingLoop(pingCtx)
		s.readLoop(ctx)
		stopPing()
	}
}

func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	header.Set("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	if s.counter != nil {
		s.counter.IncrementConnections()
	}

	if err := s.subscribe(); err != nil {
		s.closeConnection()
		return err
	}

	s.logger.Info("Stream connected", slog.String("url", s.url))
	return nil
}

func (s *Stream) subscribe() error {
	var msg wsSubscribe
	msg.Method = "subscribe"
	msg.Subscription.Type = "allMids"
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.threadSafeWrite(websocket.TextMessage, b)
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.threadSafeWrite(websocket.TextMessage, []byte(`{"method":"ping"}`)); err != nil {
				return
			}
		}
	}
}

func (s *Stream) threadSafeWrite(msgType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return fmt.Errorf("no conn")
	}
	return s.conn.WriteMessage(msgType, data)
}

func (s *Stream) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Stream read failed", slog.Any("error", err))
			}
			s.closeConnection()
			return
		}
		s.handleMessage(msg)
	}
}

func (s *Stream) handleMessage(msg []byte) {
	var frame wsMessage
	if json.Unmarshal(msg, &frame) != nil || frame.Channel != "allMids" {
		return
	}
	var data allMidsData
	if err := json.Unmarshal(frame.Data, &data); err != nil || len(data.Mids) == 0 {
		s.logger.Debug("Dropped malformed allMids frame")
		return
	}
	mids, err := toPriceMap(data.Mids)
	if err != nil {
		s.logger.Warn("Dropped allMids frame", slog.Any("error", err))
		return
	}
	s.sink.Push(mids)
}

func (s *Stream) closeConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		if s.counter != nil {
			s.counter.DecrementConnections()
		}
	}
	s.connected = false
}
