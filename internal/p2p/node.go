package p2p

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/lvenc/lvenc-node/internal/ledger"
)

// Defaults for admission control and maintenance.
const (
	DefaultMaxPeers         = 50
	DefaultMinPeers         = 8
	DefaultMaxPeersPerIP    = 2
	DefaultMaxPeersPerSubnet = 5
	DefaultDialTimeout      = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultMaintenanceEvery = 45 * time.Second
)

// Config bundles a Node's listen address, bootstrap set and tunables.
// Zero-valued fields fall back to the defaults above.
type Config struct {
	ListenAddr       string
	ChainID          string
	NodeVersion      string
	BootstrapPeers   []string
	MaxPeers         int
	MinPeers         int
	MaxPeersPerIP    int
	MaxPeersPerSubnet int
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	MaintenanceEvery time.Duration
	Logger           *log.Logger
}

func (c *Config) setDefaults() {
	if c.MaxPeers == 0 {
		c.MaxPeers = DefaultMaxPeers
	}
	if c.MinPeers == 0 {
		c.MinPeers = DefaultMinPeers
	}
	if c.MaxPeersPerIP == 0 {
		c.MaxPeersPerIP = DefaultMaxPeersPerIP
	}
	if c.MaxPeersPerSubnet == 0 {
		c.MaxPeersPerSubnet = DefaultMaxPeersPerSubnet
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.MaintenanceEvery == 0 {
		c.MaintenanceEvery = DefaultMaintenanceEvery
	}
	if c.NodeVersion == "" {
		c.NodeVersion = "lvenc-node/dev"
	}
	if c.Logger == nil {
		c.Logger = log.StandardLogger()
	}
}

// Node is the P2P gossip/sync endpoint. It holds the peer table,
// banned-IP map and dialer behind a lock distinct from the Ledger's; the
// peer lock is never acquired while the Ledger lock is held.
type Node struct {
	cfg    Config
	logger *log.Logger
	led    *ledger.Ledger
	dialer *Dialer

	upgrader websocket.Upgrader
	server   *http.Server

	peerMu sync.RWMutex
	peers  map[string]*Peer // id -> peer

	banMu     sync.Mutex
	bannedIPs map[string]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Node bound to the given ledger. Call Start to begin
// listening and dialing bootstrap peers.
func New(cfg Config, led *ledger.Ledger) *Node {
	cfg.setDefaults()
	return &Node{
		cfg:       cfg,
		logger:    cfg.Logger,
		led:       led,
		dialer:    NewDialer(cfg.DialTimeout, 30*time.Second),
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		peers:     make(map[string]*Peer),
		bannedIPs: make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}
}

// Start binds the listener, dials every bootstrap peer, and begins the
// gossip subscriber and periodic maintenance loop. It returns once the
// listener is bound; all further work happens in background goroutines.
func (n *Node) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", n.handleInbound)
	n.server = &http.Server{Addr: n.cfg.ListenAddr, Handler: mux}

	ln, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("p2p: listen %s: %w", n.cfg.ListenAddr, err)
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			n.logger.WithError(err).Error("p2p: server stopped unexpectedly")
		}
	}()

	for _, addr := range n.cfg.BootstrapPeers {
		addr := addr
		go func() {
			if err := n.DialSeed(addr); err != nil {
				n.logger.WithFields(log.Fields{"addr": addr, "error": err}).Warn("p2p: bootstrap dial failed")
			}
		}()
	}

	n.wg.Add(2)
	go n.gossipLoop()
	go n.maintenanceLoop()

	n.logger.WithField("addr", n.cfg.ListenAddr).Info("p2p: node listening")
	return nil
}

// Stop closes the listener and every peer connection.
func (n *Node) Stop() error {
	n.stopOnce.Do(func() { close(n.stopCh) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var err error
	if n.server != nil {
		err = n.server.Shutdown(ctx)
	}

	n.peerMu.Lock()
	for _, p := range n.peers {
		p.close()
	}
	n.peerMu.Unlock()

	n.wg.Wait()
	return err
}

// Peers returns a snapshot of the currently connected peers.
func (n *Node) Peers() []*Peer {
	n.peerMu.RLock()
	defer n.peerMu.RUnlock()
	out := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

// VerifiedPeerCount returns the number of peers that completed handshake.
func (n *Node) VerifiedPeerCount() int {
	n.peerMu.RLock()
	defer n.peerMu.RUnlock()
	count := 0
	for _, p := range n.peers {
		if p.isVerified() {
			count++
		}
	}
	return count
}

func (n *Node) handleInbound(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if reason, ok := n.admitLocked(host); !ok {
		n.logger.WithFields(log.Fields{"ip": host, "reason": reason}).Warn("p2p: rejected inbound connection")
		http.Error(w, reason, http.StatusTooManyRequests)
		return
	}

	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.logger.WithError(err).Warn("p2p: websocket upgrade failed")
		return
	}
	peer := newPeer(conn, false)
	n.registerPeer(peer)

	// The accepting side always initiates the handshake.
	n.sendHandshake(peer)
	n.runPeer(peer)
}

// DialSeed connects to a single bootstrap address and registers it as an
// outbound peer. The handshake is driven by the accepting side; this node
// waits for its HANDSHAKE in runPeer.
func (n *Node) DialSeed(addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.dialer.Timeout)
	defer cancel()

	url := addr
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + addr + "/ws"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("p2p: dial %s: %w", addr, err)
	}

	peer := newPeer(conn, true)
	n.registerPeer(peer)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.runPeer(peer)
	}()
	return nil
}

func (n *Node) registerPeer(p *Peer) {
	n.peerMu.Lock()
	n.peers[p.ID] = p
	n.peerMu.Unlock()
	go p.writePump()
}

func (n *Node) unregisterPeer(p *Peer) {
	n.peerMu.Lock()
	delete(n.peers, p.ID)
	n.peerMu.Unlock()
	p.close()
}

// Dialer manages outbound peer connection timing. The connection itself
// goes through gorilla/websocket's own dialer; Dialer carries the
// timeout/keepalive tunables.
type Dialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration
}

// NewDialer constructs a Dialer with the given timeout/keepalive.
func NewDialer(timeout, keepAlive time.Duration) *Dialer {
	return &Dialer{Timeout: timeout, KeepAlive: keepAlive}
}
