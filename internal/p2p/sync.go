package p2p

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lvenc/lvenc-node/internal/ledger"
	"github.com/lvenc/lvenc-node/internal/nodeerr"
)

// sendHandshake is sent by the accepting side immediately after a
// connection is established.
func (n *Node) sendHandshake(p *Peer) {
	genesis, _ := n.led.BlockAt(0)
	hp := HandshakePayload{
		ProtocolVersion: ProtocolVersion,
		ChainID:         n.cfg.ChainID,
		GenesisHash:     genesis.Hash,
		NodeVersion:     n.cfg.NodeVersion,
		CurrentHeight:   n.led.Height(),
	}
	n.sendEnvelope(p, MsgHandshake, hp)
}

func (n *Node) handleHandshake(p *Peer, raw json.RawMessage) {
	var hp HandshakePayload
	if err := json.Unmarshal(raw, &hp); err != nil {
		n.penalize(p, scoreParseFailure, "malformed handshake")
		return
	}
	genesis, _ := n.led.BlockAt(0)
	if hp.ProtocolVersion != ProtocolVersion || hp.ChainID != n.cfg.ChainID || hp.GenesisHash != genesis.Hash {
		n.sendEnvelope(p, MsgVersionReject, VersionRejectPayload{
			Reason:   "protocol/chain/genesis mismatch",
			Expected: fmt.Sprintf("v%d chain=%s genesis=%s", ProtocolVersion, n.cfg.ChainID, genesis.Hash),
			Got:      fmt.Sprintf("v%d chain=%s genesis=%s", hp.ProtocolVersion, hp.ChainID, hp.GenesisHash),
		})
		p.close()
		return
	}
	p.markVerified()
	p.adjustScore(scoreGoodMessage)
	n.sendEnvelope(p, MsgHandshakeAck, struct{}{})
	n.sendEnvelope(p, MsgQueryLatest, struct{}{})
	n.sendEnvelope(p, MsgQueryPeers, struct{}{})
}

func (n *Node) handleQueryLatest(p *Peer) {
	n.sendEnvelope(p, MsgResponseBlockchain, BlocksPayload{Blocks: []*ledger.Block{n.led.Tip()}})
}

func (n *Node) handleQueryAll(p *Peer) {
	n.sendEnvelope(p, MsgResponseBlockchain, BlocksPayload{Blocks: n.led.Chain()})
}

// handleResponseBlockchain implements the synchronization decision
// tree.
func (n *Node) handleResponseBlockchain(p *Peer, raw json.RawMessage) {
	var payload BlocksPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		n.penalize(p, scoreParseFailure, "malformed RESPONSE_BLOCKCHAIN")
		return
	}
	if len(payload.Blocks) == 0 {
		return
	}

	tip := n.led.Tip()
	peerTip := payload.Blocks[len(payload.Blocks)-1]
	if peerTip.Index <= tip.Index {
		return
	}

	if len(payload.Blocks) == 1 {
		single := payload.Blocks[0]
		if single.PreviousHash == tip.Hash {
			if err := n.led.AcceptBlock(single); err != nil {
				n.penalize(p, scoreProtocolErr, "invalid single-block append")
				return
			}
			p.adjustScore(scoreGoodSync)
			return
		}
		// Single block doesn't attach to our tip: request the gap via the
		// chunked sync variant.
		n.sendEnvelope(p, MsgQueryBlocksFrom, QueryBlocksFromPayload{FromHeight: tip.Index + 1, Limit: maxChunkBlocks})
		return
	}

	if err := n.led.ReplaceChain(payload.Blocks); err != nil {
		n.penalize(p, scoreProtocolErr, "replaceChain failed")
		return
	}
	p.adjustScore(scoreGoodSync)
}

func (n *Node) handleQueryBlocksFrom(p *Peer, raw json.RawMessage) {
	var q QueryBlocksFromPayload
	if err := json.Unmarshal(raw, &q); err != nil {
		n.penalize(p, scoreParseFailure, "malformed QUERY_BLOCKS_FROM")
		return
	}
	if q.Limit <= 0 || q.Limit > maxChunkBlocks {
		q.Limit = maxChunkBlocks
	}

	chain := n.led.Chain()
	if q.FromHeight >= uint64(len(chain)) {
		n.sendEnvelope(p, MsgResponseBlocks, ResponseBlocksPayload{})
		return
	}
	end := q.FromHeight + uint64(q.Limit)
	hasMore := end < uint64(len(chain))
	if end > uint64(len(chain)) {
		end = uint64(len(chain))
	}
	n.sendEnvelope(p, MsgResponseBlocks, ResponseBlocksPayload{
		Blocks:  chain[q.FromHeight:end],
		HasMore: hasMore,
	})
}

func (n *Node) handleResponseBlocks(p *Peer, raw json.RawMessage) {
	var resp ResponseBlocksPayload
	if err := json.Unmarshal(raw, &resp); err != nil {
		n.penalize(p, scoreParseFailure, "malformed RESPONSE_BLOCKS")
		return
	}
	for _, b := range resp.Blocks {
		if err := n.led.AcceptBlock(b); err != nil {
			if errors.Is(err, nodeerr.ErrGapDetected) {
				break
			}
			n.penalize(p, scoreProtocolErr, "invalid chunked block")
			return
		}
	}
	p.adjustScore(scoreGoodSync)
	if resp.HasMore {
		n.sendEnvelope(p, MsgQueryBlocksFrom, QueryBlocksFromPayload{FromHeight: n.led.Height() + 1, Limit: maxChunkBlocks})
	}
}

func (n *Node) handleNewBlock(p *Peer, raw json.RawMessage) {
	var b ledger.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		n.penalize(p, scoreParseFailure, "malformed NEW_BLOCK")
		return
	}
	if err := n.led.AcceptBlock(&b); err != nil {
		if errors.Is(err, nodeerr.ErrGapDetected) {
			n.sendEnvelope(p, MsgQueryBlocksFrom, QueryBlocksFromPayload{FromHeight: n.led.Height() + 1, Limit: maxChunkBlocks})
			return
		}
		n.penalize(p, scoreProtocolErr, "invalid NEW_BLOCK")
		return
	}
	p.adjustScore(scoreGoodMessage)
}

func (n *Node) handleNewTransaction(p *Peer, raw json.RawMessage) {
	var tx ledger.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		n.penalize(p, scoreParseFailure, "malformed NEW_TRANSACTION")
		return
	}
	if err := n.led.SubmitTx(&tx); err != nil {
		if errors.Is(err, nodeerr.ErrDuplicateTx) {
			return
		}
		n.penalize(p, scoreProtocolErr, "invalid NEW_TRANSACTION")
		return
	}
	p.adjustScore(scoreGoodMessage)
}

func (n *Node) handleQueryTransactionPool(p *Peer) {
	n.sendEnvelope(p, MsgResponseTransactionPool, TransactionPoolPayload{Transactions: n.led.Mempool().All()})
}

func (n *Node) handleResponseTransactionPool(p *Peer, raw json.RawMessage) {
	var payload TransactionPoolPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		n.penalize(p, scoreParseFailure, "malformed RESPONSE_TRANSACTION_POOL")
		return
	}
	for _, tx := range payload.Transactions {
		// Errors here are expected and not penalized: most entries will
		// already be in our own mempool or reference balances we haven't
		// applied yet.
		_ = n.led.SubmitTx(tx)
	}
}

func (n *Node) handleQueryPeers(p *Peer) {
	if !p.checkAndStampPEX(time.Now()) {
		n.penalize(p, scoreRateLimited, "QUERY_PEERS rate limited")
		return
	}
	addrs := make([]string, 0, maxPeersToShare)
	for _, other := range n.Peers() {
		if other.ID == p.ID || !other.isVerified() {
			continue
		}
		addrs = append(addrs, other.Addr)
		if len(addrs) >= maxPeersToShare {
			break
		}
	}
	n.sendEnvelope(p, MsgResponsePeers, PeersPayload{Addrs: addrs})
}

func (n *Node) handleResponsePeers(p *Peer, raw json.RawMessage) {
	var payload PeersPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		n.penalize(p, scoreParseFailure, "malformed RESPONSE_PEERS")
		return
	}
	known := make(map[string]bool)
	for _, other := range n.Peers() {
		known[other.Addr] = true
	}
	for _, addr := range payload.Addrs {
		if known[addr] {
			continue
		}
		addr := addr
		go func() {
			if err := n.DialSeed(addr); err != nil {
				n.logger.WithField("addr", addr).Debug("p2p: peer-exchange dial failed")
			}
		}()
	}
}
