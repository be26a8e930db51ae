// Package web is the browser front end: a websocket endpoint that accepts
// turn submissions and streams ordered event frames back. It is a transport
// shim; all conversation logic lives in the agent runtime.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haldis/strand/internal/adapter"
	"github.com/haldis/strand/internal/agent"
	"github.com/haldis/strand/internal/checkpoint"
	"github.com/haldis/strand/internal/observability"
	"github.com/haldis/strand/pkg/models"
)

// eventHistory is the web-specific frame type answering a history request;
// the reconnecting client replays it before streaming new turns.
const eventHistory models.StreamEventType = "history"

// frame is one outgoing websocket message, mirroring StreamEvent with the
// suggestions already rendered as chips.
type frame struct {
	Type        models.StreamEventType   `json:"type"`
	Text        string                   `json:"text,omitempty"`
	Suggestions []adapter.SuggestionChip `json:"suggestions,omitempty"`
	State       map[string]any           `json:"state,omitempty"`
	History     []historyTurn            `json:"history,omitempty"`
}

// historyTurn is one visible entry of a thread's checkpointed history.
type historyTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Server serves the websocket chat endpoint.
type Server struct {
	runtime *agent.Runtime
	render  *adapter.Web
	logger  *slog.Logger

	upgrader websocket.Upgrader
}

// NewServer creates the web front end.
func NewServer(runtime *agent.Runtime, logger *slog.Logger) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Server{
		runtime: runtime,
		render:  adapter.NewWeb(),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the HTTP routes: /ws for the chat stream, /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("web front end listening", "addr", listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Writes are serialized: turn goroutines and the read loop share conn.
	var writeMu sync.Mutex
	writeFrame := func(f frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(f)
	}

	connCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var lastThread string
	for {
		var req models.TurnRequest
		if err := conn.ReadJSON(&req); err != nil {
			// Disconnect cancels the in-flight generation for this thread.
			if lastThread != "" {
				s.runtime.Cancel(lastThread)
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		req.Platform = models.PlatformWeb
		lastThread = req.ThreadID

		// A submission without text asks for the thread's checkpointed
		// history, so a reconnecting client can restore the transcript.
		if strings.TrimSpace(req.Text) == "" {
			if err := writeFrame(s.historyFrame(r.Context(), req.ThreadID)); err != nil {
				s.logger.Debug("websocket write failed", "thread_id", req.ThreadID, "error", err)
				return
			}
			continue
		}

		// SubmitTurn cancels any previous generation for the same thread, so
		// a new submission while one is running behaves like a restart.
		go s.streamTurn(connCtx, req, writeFrame)
	}
}

// historyFrame loads the checkpointed state for a thread and renders its
// visible turns. An unknown thread yields an empty history, not an error.
func (s *Server) historyFrame(ctx context.Context, threadID string) frame {
	f := frame{Type: eventHistory}
	st, err := s.runtime.History(ctx, threadID)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNotFound) {
			s.logger.Warn("history load failed", "thread_id", threadID, "error", err)
		}
		return f
	}

	for _, turn := range st.Turns {
		if turn.Role == models.RoleTool || strings.TrimSpace(turn.Content) == "" {
			continue
		}
		f.History = append(f.History, historyTurn{Role: string(turn.Role), Text: turn.Content})
	}
	chips, _ := s.render.RenderSuggestions(st.Suggestions).([]adapter.SuggestionChip)
	f.Suggestions = chips
	f.State = map[string]any{
		"thread_id":  st.ThreadID,
		"persona":    st.SubAgentID,
		"turn_count": len(st.Turns),
	}
	return f
}

func (s *Server) streamTurn(ctx context.Context, req models.TurnRequest, writeFrame func(frame) error) {
	for ev := range s.runtime.SubmitTurn(ctx, req) {
		var err error
		switch ev.Type {
		case models.EventTextChunk:
			for _, chunk := range s.render.ChunkLongMessage(s.render.FormatMessage(ev.Text)) {
				if err = writeFrame(frame{Type: models.EventTextChunk, Text: chunk}); err != nil {
					break
				}
			}
		case models.EventSuggestions:
			chips, _ := s.render.RenderSuggestions(ev.Suggestions).([]adapter.SuggestionChip)
			err = writeFrame(frame{Type: models.EventSuggestions, Suggestions: chips})
		case models.EventStateUpdate:
			err = writeFrame(frame{Type: models.EventStateUpdate, State: ev.State})
		}
		if err != nil {
			s.logger.Debug("websocket write failed", "thread_id", req.ThreadID, "error", err)
			s.runtime.Cancel(req.ThreadID)
			return
		}
	}
}
