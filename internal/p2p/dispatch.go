package p2p

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// runPeer is the per-peer read loop. It is the single goroutine that ever
// reads from this peer's connection, so message processing for one socket
// is strictly serial.
func (n *Node) runPeer(p *Peer) {
	defer n.unregisterPeer(p)
	p.conn.SetReadLimit(maxMessageBytes)

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		n.dispatch(p, raw)
	}
}

func (n *Node) dispatch(p *Peer, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		n.penalize(p, scoreParseFailure, "malformed envelope")
		return
	}

	if !p.isVerified() {
		switch env.Type {
		case MsgHandshake, MsgHandshakeAck, MsgVersionReject:
		default:
			n.penalize(p, scoreProtocolErr, "message before handshake")
			return
		}
	}

	switch env.Type {
	case MsgHandshake:
		n.handleHandshake(p, env.Data)
	case MsgHandshakeAck:
		p.markVerified()
		p.adjustScore(scoreGoodMessage)
	case MsgVersionReject:
		n.logger.WithField("peer", p.Addr).Warn("p2p: peer rejected our handshake")
		p.close()
	case MsgQueryLatest:
		n.handleQueryLatest(p)
	case MsgQueryAll:
		n.handleQueryAll(p)
	case MsgQueryBlocksFrom:
		n.handleQueryBlocksFrom(p, env.Data)
	case MsgResponseBlockchain:
		n.handleResponseBlockchain(p, env.Data)
	case MsgResponseBlocks:
		n.handleResponseBlocks(p, env.Data)
	case MsgNewBlock:
		n.handleNewBlock(p, env.Data)
	case MsgNewTransaction:
		n.handleNewTransaction(p, env.Data)
	case MsgQueryTransactionPool:
		n.handleQueryTransactionPool(p)
	case MsgResponseTransactionPool:
		n.handleResponseTransactionPool(p, env.Data)
	case MsgQueryPeers:
		n.handleQueryPeers(p)
	case MsgResponsePeers:
		n.handleResponsePeers(p, env.Data)
	default:
		n.penalize(p, scoreUnsolicited, "unknown message type")
	}
}

// penalize lowers a peer's score and bans its IP once the score crosses
// zero.
func (n *Node) penalize(p *Peer, delta int, reason string) {
	n.logger.WithFields(log.Fields{"peer": p.Addr, "reason": reason}).Debug("p2p: penalizing peer")
	if p.adjustScore(delta) {
		n.logger.WithField("peer", p.Addr).Warn("p2p: peer score exhausted, banning")
		n.banIP(p.IP)
	}
}

func (n *Node) sendEnvelope(p *Peer, t MessageType, payload any) {
	data, err := encodeEnvelope(t, payload)
	if err != nil {
		n.logger.WithError(err).Error("p2p: encode outbound message")
		return
	}
	if !p.enqueue(data) {
		n.logger.WithField("peer", p.Addr).Warn("p2p: send queue full, dropping message")
	}
}

func (n *Node) broadcastToVerified(t MessageType, payload any) {
	data, err := encodeEnvelope(t, payload)
	if err != nil {
		n.logger.WithError(err).Error("p2p: encode broadcast message")
		return
	}
	for _, p := range n.Peers() {
		if !p.isVerified() {
			continue
		}
		if !p.enqueue(data) {
			n.logger.WithField("peer", p.Addr).Warn("p2p: broadcast queue full, dropping message")
		}
	}
}
