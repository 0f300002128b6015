// Package remote implements the episode session over a websocket connection
// to the simulation server. It is the default client.Session; the facade
// itself depends only on the interface.
package remote

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"roadsim.ai/internal/client"
	"roadsim.ai/internal/protocol"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultCallTimeout    = 10 * time.Second
)

var _ client.Session = (*Session)(nil)

type Options struct {
	URL            string
	ClientName     string
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
}

func (o *Options) normalize() {
	if o.ClientName == "" {
		o.ClientName = "roadsim"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = defaultCallTimeout
	}
}

// Session is one live episode connection. A single reader goroutine owns the
// incoming stream: it keeps the actor directory in sync with every TICK,
// routes RESULT messages to in-flight requests by req_id, and tears the
// session down on BYE or read error. Writes are serialized by writeMu.
type Session struct {
	conn        *websocket.Conn
	callTimeout time.Duration

	writeMu sync.Mutex
	reqID   atomic.Uint64

	mu        sync.Mutex
	closed    bool
	pending   map[uint64]chan protocol.ResultMsg
	snapshot  client.WorldSnapshot
	byID      map[client.ActorID]int
	episodeID string
	mapName   string

	onSnapshot func(client.WorldSnapshot)
	onClose    func()

	closeOnce sync.Once
	done      chan struct{}
}

// Connect dials the server, performs the HELLO/WELCOME handshake and starts
// the reader. The returned session is bound to exactly one episode; when
// that episode ends the session is dead and a new Connect is required.
func Connect(opts Options) (*Session, error) {
	opts.normalize()

	dialer := websocket.Dialer{HandshakeTimeout: opts.ConnectTimeout}
	conn, _, err := dialer.Dial(opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      opts.ClientName,
	}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send HELLO: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(opts.ConnectTimeout))
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read WELCOME: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if welcome.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake: expected WELCOME, got %q", welcome.Type)
	}
	if welcome.ProtocolVersion != protocol.Version {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake: protocol version %q, want %q", welcome.ProtocolVersion, protocol.Version)
	}

	s := &Session{
		conn:        conn,
		callTimeout: opts.CallTimeout,
		pending:     map[uint64]chan protocol.ResultMsg{},
		byID:        map[client.ActorID]int{},
		episodeID:   welcome.EpisodeID,
		mapName:     welcome.MapName,
		done:        make(chan struct{}),
	}
	s.snapshot = client.WorldSnapshot{EpisodeID: welcome.EpisodeID, Frame: welcome.Frame}

	go s.readLoop()
	return s, nil
}

func (s *Session) EpisodeID() string { return s.episodeID }
func (s *Session) MapName() string   { return s.mapName }

// Close tears the session down. Idempotent; also called internally on BYE
// and read errors.
func (s *Session) Close() error {
	s.teardown()
	return nil
}

// Bind implements client.Session.
func (s *Session) Bind(onSnapshot func(client.WorldSnapshot), onClose func()) {
	s.mu.Lock()
	s.onSnapshot = onSnapshot
	s.onClose = onClose
	closed := s.closed
	s.mu.Unlock()
	if closed && onClose != nil {
		onClose()
	}
}

func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
		s.mu.Lock()
		s.closed = true
		onClose := s.onClose
		s.pending = map[uint64]chan protocol.ResultMsg{}
		s.mu.Unlock()
		if onClose != nil {
			onClose()
		}
	})
}

func (s *Session) readLoop() {
	defer s.teardown()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(data)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeTick:
			s.handleTick(data)
		case protocol.TypeResult:
			s.handleResult(data)
		case protocol.TypeBye:
			return
		}
	}
}

func (s *Session) handleTick(data []byte) {
	var tick protocol.TickMsg
	if err := json.Unmarshal(data, &tick); err != nil {
		return
	}
	snap := client.WorldSnapshot{
		EpisodeID:      tick.EpisodeID,
		Frame:          tick.Frame,
		ElapsedSeconds: tick.ElapsedSeconds,
		DeltaSeconds:   tick.DeltaSeconds,
		Actors:         tick.Actors,
	}

	s.mu.Lock()
	s.snapshot = snap
	s.byID = make(map[client.ActorID]int, len(snap.Actors))
	for i, a := range snap.Actors {
		s.byID[client.ActorID(a.ID)] = i
	}
	onSnapshot := s.onSnapshot
	s.mu.Unlock()

	// Delivered outside the lock, still on the single reader goroutine, so
	// callbacks observe snapshots one at a time in frame order.
	if onSnapshot != nil {
		onSnapshot(snap)
	}
}

func (s *Session) handleResult(data []byte) {
	var res protocol.ResultMsg
	if err := json.Unmarshal(data, &res); err != nil {
		return
	}
	s.mu.Lock()
	ch := s.pending[res.ReqID]
	delete(s.pending, res.ReqID)
	s.mu.Unlock()
	if ch != nil {
		ch <- res
	}
}

// Snapshot implements client.Session.
func (s *Session) Snapshot() client.WorldSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// ActorByID implements client.Session; served from the latest snapshot.
func (s *Session) ActorByID(id client.ActorID) (protocol.ActorRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return protocol.ActorRecord{}, false
	}
	return s.snapshot.Actors[i], true
}

// AllActors implements client.Session; session-reported order.
func (s *Session) AllActors() []protocol.ActorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.ActorRecord, len(s.snapshot.Actors))
	copy(out, s.snapshot.Actors)
	return out
}

// registerActor folds a freshly spawned actor into the directory so it is
// resolvable before the next TICK arrives.
func (s *Session) registerActor(rec protocol.ActorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[client.ActorID(rec.ID)]; ok {
		return
	}
	s.snapshot.Actors = append(s.snapshot.Actors, rec)
	s.byID[client.ActorID(rec.ID)] = len(s.snapshot.Actors) - 1
}
