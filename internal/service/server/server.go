// Package server exposes a running chat transport over a websocket so that
// other programs on the host can read and post messages.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"groupchat/internal/model"
	"groupchat/internal/utils/log"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	clientQueue  = 64
	writeTimeout = 5 * time.Second
)

type (
	Sender interface {
		Send(ctx context.Context, text string) error
	}

	Info struct {
		Nickname  string `json:"nickname"`
		Local     string `json:"local"`
		Broadcast string `json:"broadcast"`
		Port      int    `json:"port"`
		Encrypted bool   `json:"encrypted"`
	}

	HttpServer struct {
		sender Sender
		info   Info

		mu     sync.Mutex
		mapper map[*websocket.Conn]chan []byte
	}

	wireEvent struct {
		Sender string       `json:"sender"`
		Msg    string       `json:"msg"`
		Origin model.Origin `json:"origin"`
		From   string       `json:"from,omitempty"`
		At     time.Time    `json:"at"`
	}

	sendRequest struct {
		Text string `json:"text"`
	}

	errorReply struct {
		Error string `json:"error"`
	}
)

func NewHttpServer(sender Sender, info Info) *HttpServer {
	return &HttpServer{
		sender: sender,
		info:   info,
		mapper: make(map[*websocket.Conn]chan []byte),
	}
}

func (s *HttpServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/ws", s.HandleWS()).Methods(http.MethodGet)
	r.HandleFunc("/info", s.GetInfo()).Methods(http.MethodGet)
	return r
}

// Run serves on addr until ctx is cancelled.
func (s *HttpServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("bridge listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Deliver queues the event for every connected client. A client whose queue
// is full misses the event.
func (s *HttpServer) Deliver(ctx context.Context, e model.Event) {
	ev := wireEvent{
		Sender: e.Message.Sender,
		Msg:    e.Message.Body,
		Origin: e.Origin,
		At:     e.At,
	}
	if e.From.IsValid() {
		ev.From = e.From.String()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error("marshal event failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, queue := range s.mapper {
		select {
		case queue <- data:
		default:
			log.Warn("bridge client too slow, event dropped", zap.Stringer("client", conn.RemoteAddr()))
		}
	}
}

func (s *HttpServer) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mapper)
}

func (s *HttpServer) HandleWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		queue := make(chan []byte, clientQueue)
		s.mu.Lock()
		s.mapper[conn] = queue
		s.mu.Unlock()
		log.Debug("bridge client connected", zap.Stringer("client", conn.RemoteAddr()))

		go s.writeLoop(conn, queue)
		s.processWSMessage(r.Context(), conn, queue)
	}
}

func (s *HttpServer) processWSMessage(ctx context.Context, conn *websocket.Conn, queue chan []byte) {
	defer s.remove(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug("bridge client closed", zap.Error(err))
			return
		}

		var req sendRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.reply(queue, "invalid request: "+err.Error())
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = s.sender.Send(sendCtx, req.Text)
		cancel()
		if err != nil {
			log.Warn("bridge send failed", zap.Error(err))
			s.reply(queue, err.Error())
		}
	}
}

func (s *HttpServer) writeLoop(conn *websocket.Conn, queue chan []byte) {
	for data := range queue {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug("bridge write failed", zap.Error(err))
			conn.Close()
			// drain until the reader removes the client
			for range queue {
			}
			return
		}
	}
	conn.Close()
}

func (s *HttpServer) reply(queue chan []byte, msg string) {
	data, _ := json.Marshal(errorReply{Error: msg})
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case queue <- data:
	default:
	}
}

func (s *HttpServer) remove(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if queue, ok := s.mapper[conn]; ok {
		delete(s.mapper, conn)
		close(queue)
	}
}

func (s *HttpServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.mapper {
		conn.Close()
	}
}

func (s *HttpServer) GetInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := json.Marshal(s.info)
		if err != nil {
			log.Error("marshal info failed", zap.Error(err))
			http.Error(w, "marshal info failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
