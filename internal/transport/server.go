// Package transport carries recording requests between game clients and the
// recm server over websockets, and serves the admin HTTP API.
package transport

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	ws "github.com/gorilla/websocket"

	"github.com/RecM/recm/internal/catalog"
	"github.com/RecM/recm/internal/codec"
	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/internal/dispatcher"
	"github.com/RecM/recm/internal/engine"
	"github.com/RecM/recm/internal/playback"
	"github.com/RecM/recm/internal/storage"
	"github.com/RecM/recm/pkg/core"
	"github.com/RecM/recm/pkg/streaming"
)

// SecretHeader carries the shared secret for admin API requests.
const SecretHeader = "X-Recm-Secret"

const (
	peerSendSize     = 256
	maxMessageSize   = 1 << 20
	maxTransferBytes = 16 << 20
	transferTTL      = time.Minute
	runQueueSize     = 256
)

// Store is what the server serves: recordings plus playback history.
type Store interface {
	engine.Store
	playback.RunRecorder
}

// Catalog gives the admin API access to stored documents.
type Catalog interface {
	Get(key core.RecordingKey) (core.Listing, []core.Frame, error)
	ReadRevision(r core.Recording) ([]byte, error)
}

// ServerDependencies holds what a Server needs. Catalog and History are
// optional; without them the matching admin routes answer 501.
type ServerDependencies struct {
	Store   Store
	Catalog Catalog
	History storage.Backend
	Logger  *slog.Logger
}

type transfer struct {
	chunks  map[int]string
	size    int
	started time.Time
}

// Server accepts game client connections and routes their commands.
type Server struct {
	deps       ServerDependencies
	cfg        config.TransportConfig
	upgrader   ws.Upgrader
	dispatcher *dispatcher.Dispatcher

	mu        sync.Mutex
	peers     map[string]*peer
	transfers map[string]*transfer
	announced map[core.RecordingKey]int
	http      *http.Server
	connected atomic.Int32
}

// NewServer registers the command handlers. Nothing listens until Start.
func NewServer(deps ServerDependencies, cfg config.TransportConfig) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("transport: store is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	d, err := dispatcher.New(deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}
	s := &Server{
		deps:       deps,
		cfg:        cfg,
		upgrader:   ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		dispatcher: d,
		peers:      make(map[string]*peer),
		transfers:  make(map[string]*transfer),
		announced:  make(map[core.RecordingKey]int),
	}

	d.Register(streaming.TypeSaveChunk, s.handleSaveChunk)
	d.Register(streaming.TypeSave, s.handleSave, dispatcher.Logged())
	d.Register(streaming.TypeList, s.handleList, dispatcher.Logged())
	d.Register(streaming.TypeVanilla, s.handleVanilla, dispatcher.Logged())
	d.Register(streaming.TypeDelete, s.handleDelete, dispatcher.Logged())
	d.Register(streaming.TypeOpen, s.handleOpen, dispatcher.Logged())
	d.Register(streaming.TypePlaybackRun, s.handlePlaybackRun, dispatcher.Buffered(runQueueSize), dispatcher.Logged())
	return s, nil
}

// Start listens on the configured address and serves in the background.
// It returns the bound address.
func (s *Server) Start() (net.Addr, error) {
	l, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("Transport server stopped", "error", err)
		}
	}()
	s.deps.Logger.Info("Transport server listening", "addr", l.Addr().String())
	return l.Addr(), nil
}

// Shutdown disconnects every client, finishes queued playback runs and stops
// the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	srv := s.http
	s.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	err := s.dispatcher.Close(ctx)
	if srv == nil {
		return err
	}
	return errors.Join(err, srv.Shutdown(ctx))
}

// Handler is the full HTTP surface: the websocket endpoint and the admin API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWS)
	s.registerAPI(r)
	return r
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Secret == "" {
		return true
	}
	got := r.Header.Get(SecretHeader)
	if got == "" {
		got = r.URL.Query().Get("secret")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) == 1
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "invalid secret", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	p := newPeer(uuid.NewString(), conn, s.deps.Logger)
	s.mu.Lock()
	s.peers[p.id] = p
	s.connected.Store(int32(len(s.peers)))
	s.mu.Unlock()
	s.deps.Logger.Info("Client connected", "peer", p.id, "remote", r.RemoteAddr)

	go p.writeLoop()
	s.readLoop(p)

	s.mu.Lock()
	delete(s.peers, p.id)
	s.connected.Store(int32(len(s.peers)))
	for k := range s.transfers {
		if strings.HasPrefix(k, p.id+"/") {
			delete(s.transfers, k)
		}
	}
	s.mu.Unlock()
	p.close()
	s.deps.Logger.Info("Client disconnected", "peer", p.id)
}

func (s *Server) readLoop(p *peer) {
	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				s.deps.Logger.Debug("WebSocket read error", "peer", p.id, "error", err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.deps.Logger.Debug("Malformed message", "peer", p.id, "error", err)
			continue
		}

		result, err := s.dispatcher.Dispatch(dispatcher.Event{
			Command:   env.Type,
			Source:    p.id,
			RequestID: env.RequestID,
			Payload:   env.Payload,
			Timestamp: time.Now(),
		})
		if env.RequestID == "" {
			continue
		}
		p.send(replyFor(env.RequestID, result, err))
	}
}

func replyFor(requestID string, result any, err error) []byte {
	reply := streaming.Reply{Type: streaming.TypeReply, RequestID: requestID, OK: err == nil}
	if err != nil {
		reply.Code = codeOf(err)
		reply.Message = err.Error()
	} else {
		// partial results go out as a successful reply with a warning
		if p, ok := result.(partial); ok {
			result = p.result
			reply.Code = codeOf(p.err)
			reply.Message = p.err.Error()
		}
		if result != nil {
			raw, merr := json.Marshal(result)
			if merr != nil {
				reply.OK = false
				reply.Code = streaming.CodeInternal
				reply.Message = merr.Error()
			} else {
				reply.Payload = raw
			}
		}
	}
	data, _ := json.Marshal(reply)
	return data
}

// Broadcast announces a recording to every connected client, once per
// revision.
func (s *Server) Broadcast(rec core.Recording) {
	s.mu.Lock()
	if rev, ok := s.announced[rec.RecordingKey]; ok && rev == rec.Revision {
		s.mu.Unlock()
		return
	}
	s.announced[rec.RecordingKey] = rec.Revision
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	raw, _ := json.Marshal(streaming.RegisteredPayload{Recording: rec})
	data, _ := json.Marshal(streaming.Envelope{Type: streaming.TypeRegistered, Payload: raw})
	for _, p := range peers {
		p.send(data)
	}
	s.deps.Logger.Debug("Recording announced", "recording", rec.Base(rec.Revision), "clients", len(peers))
}

// Peers reports how many clients are connected. It takes no locks, so log
// handlers may call it.
func (s *Server) Peers() int {
	return int(s.connected.Load())
}

//////////////////////
// COMMAND HANDLERS
//////////////////////

func (s *Server) handleSaveChunk(e dispatcher.Event) (any, error) {
	var c streaming.SaveChunkPayload
	if err := e.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if c.Transfer == "" || c.Index < 0 {
		return nil, fmt.Errorf("%w: chunk without transfer", errBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, t := range s.transfers {
		if now.Sub(t.started) > transferTTL {
			delete(s.transfers, k)
		}
	}
	key := e.Source + "/" + c.Transfer
	t, ok := s.transfers[key]
	if !ok {
		t = &transfer{chunks: make(map[int]string), started: now}
		s.transfers[key] = t
	}
	t.size += len(c.Data)
	if t.size > maxTransferBytes {
		delete(s.transfers, key)
		return nil, fmt.Errorf("%w: transfer exceeds %d bytes", errBadRequest, maxTransferBytes)
	}
	t.chunks[c.Index] = c.Data
	return nil, nil
}

// assemble joins and forgets a finished transfer.
func (s *Server) assemble(source, id string, chunks int) ([]byte, error) {
	s.mu.Lock()
	key := source + "/" + id
	t, ok := s.transfers[key]
	delete(s.transfers, key)
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown transfer %s", errBadRequest, id)
	}
	if len(t.chunks) != chunks {
		return nil, fmt.Errorf("%w: transfer %s has %d of %d chunks", errBadRequest, id, len(t.chunks), chunks)
	}
	indices := make([]int, 0, len(t.chunks))
	for i := range t.chunks {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	var b strings.Builder
	b.Grow(t.size)
	for want, i := range indices {
		if i != want {
			return nil, fmt.Errorf("%w: transfer %s is missing chunk %d", errBadRequest, id, want)
		}
		b.WriteString(t.chunks[i])
	}
	return []byte(b.String()), nil
}

func (s *Server) handleSave(e dispatcher.Event) (any, error) {
	var p streaming.SavePayload
	if err := e.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	data, err := s.assemble(e.Source, p.Transfer, p.Chunks)
	if err != nil {
		return nil, err
	}
	return s.saveDocument(context.Background(), data, engine.SaveRequest{
		Key:       core.RecordingKey{Name: p.Name, Model: p.Model},
		Metadata:  p.Metadata,
		Overwrite: p.Overwrite,
	})
}

// saveDocument parses an XML frame document into req.Frames, stores it and
// announces the new revision.
func (s *Server) saveDocument(ctx context.Context, data []byte, req engine.SaveRequest) (core.Recording, error) {
	doc, err := codec.ParseDocument(data)
	if err != nil {
		return core.Recording{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if req.Frames, err = doc.Frames(); err != nil {
		return core.Recording{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	rec, err := s.deps.Store.Save(ctx, req)
	if err != nil {
		return core.Recording{}, err
	}
	s.Broadcast(rec)
	return rec, nil
}

func (s *Server) handleList(dispatcher.Event) (any, error) {
	listings, err := s.deps.Store.List(context.Background())
	if err != nil && errors.Is(err, catalog.ErrUnreadable) {
		s.deps.Logger.Warn("Listing incomplete", "error", err)
		if listings == nil {
			listings = []core.Listing{}
		}
		return partial{result: listings, err: err}, nil
	}
	return listings, err
}

func (s *Server) handleVanilla(dispatcher.Event) (any, error) {
	return s.deps.Store.Vanilla(context.Background())
}

func (s *Server) handleDelete(e dispatcher.Event) (any, error) {
	var p streaming.DeletePayload
	if err := e.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	n, err := s.deps.Store.Delete(context.Background(), core.RecordingKey{Name: p.Name, Model: p.Model})
	if err != nil {
		return nil, err
	}
	return streaming.DeleteResult{Removed: n}, nil
}

func (s *Server) handleOpen(e dispatcher.Event) (any, error) {
	var p streaming.OpenPayload
	if err := e.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	ok, err := s.deps.Store.CanOpen(context.Background(), p.Requester)
	if err != nil {
		return nil, err
	}
	return streaming.OpenResult{Allowed: ok}, nil
}

func (s *Server) handlePlaybackRun(e dispatcher.Event) (any, error) {
	var p streaming.PlaybackRunPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	if err := s.deps.Store.RecordPlayback(p.Run()); err != nil {
		s.deps.Logger.Warn("Playback run not recorded", "session", p.SessionID, "error", err)
		return nil, err
	}
	return nil, nil
}
