package p2p

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// scoring deltas and thresholds.
const (
	initialScore = 50
	banScore     = 0

	scoreGoodMessage  = 2
	scoreGoodSync     = 5
	scoreParseFailure = -10
	scoreRateLimited  = -15
	scoreUnsolicited  = -10
	scoreProtocolErr  = -20

	pexRateLimit = 30 * time.Second
	banDuration  = 10 * time.Minute

	sendQueueDepth = 64
)

// Peer represents one connected remote node. A single Node.runPeer goroutine
// processes every inbound message for this peer, keeping score updates and
// verification state race-free per peer; writes are
// serialized through a dedicated writePump since gorilla/websocket
// forbids concurrent writers on one connection.
type Peer struct {
	mu sync.Mutex

	ID       string
	Addr     string // remote address, "ip:port"
	IP       string
	Outbound bool
	Verified bool
	Score    int
	LastPEX  time.Time

	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPeer(conn *websocket.Conn, outbound bool) *Peer {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return &Peer{
		ID:       uuid.NewString(),
		Addr:     addr,
		IP:       host,
		Outbound: outbound,
		Score:    initialScore,
		conn:     conn,
		send:     make(chan []byte, sendQueueDepth),
		closed:   make(chan struct{}),
	}
}

// adjustScore applies delta and reports whether the peer should now be
// banned (score fell to or below zero).
func (p *Peer) adjustScore(delta int) (banNow bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Score += delta
	return p.Score <= banScore
}

func (p *Peer) isVerified() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Verified
}

func (p *Peer) markVerified() {
	p.mu.Lock()
	p.Verified = true
	p.mu.Unlock()
}

// checkAndStampPEX reports whether a QUERY_PEERS request from this peer is
// within the rate limit, stamping LastPEX if so.
func (p *Peer) checkAndStampPEX(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if now.Sub(p.LastPEX) < pexRateLimit {
		return false
	}
	p.LastPEX = now
	return true
}

// enqueue queues data for delivery, dropping the peer's send pump is
// reported full rather than blocking the caller (a slow or stalled peer
// must not stall broadcast to every other peer).
func (p *Peer) enqueue(data []byte) bool {
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

func (p *Peer) close() {
	p.once.Do(func() {
		close(p.closed)
		p.conn.Close()
	})
}

func (p *Peer) writePump() {
	for {
		select {
		case data, ok := <-p.send:
			if !ok {
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				p.close()
				return
			}
		case <-p.closed:
			return
		}
	}
}
