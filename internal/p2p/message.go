// Package p2p implements the WebSocket gossip/sync network: versioned
// handshakes, admission control, peer scoring, peer exchange, and both
// incremental and chunked chain synchronization. Messages travel as a
// small tagged envelope, JSON-encoded.
package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/lvenc/lvenc-node/internal/ledger"
)

// MessageType tags the payload carried in an Envelope.
type MessageType string

const (
	MsgHandshake             MessageType = "HANDSHAKE"
	MsgHandshakeAck          MessageType = "HANDSHAKE_ACK"
	MsgVersionReject         MessageType = "VERSION_REJECT"
	MsgQueryLatest           MessageType = "QUERY_LATEST"
	MsgQueryAll              MessageType = "QUERY_ALL"
	MsgQueryBlocksFrom       MessageType = "QUERY_BLOCKS_FROM"
	MsgResponseBlockchain    MessageType = "RESPONSE_BLOCKCHAIN"
	MsgResponseBlocks        MessageType = "RESPONSE_BLOCKS"
	MsgNewBlock              MessageType = "NEW_BLOCK"
	MsgNewTransaction        MessageType = "NEW_TRANSACTION"
	MsgQueryTransactionPool  MessageType = "QUERY_TRANSACTION_POOL"
	MsgResponseTransactionPool MessageType = "RESPONSE_TRANSACTION_POOL"
	MsgQueryPeers            MessageType = "QUERY_PEERS"
	MsgResponsePeers         MessageType = "RESPONSE_PEERS"
)

// ProtocolVersion is the wire protocol version exchanged in HANDSHAKE.
const ProtocolVersion = 1

// maxMessageBytes bounds a single decoded envelope; untrusted JSON is
// length-limited before dispatch.
const maxMessageBytes = 4 << 20 // 4 MiB, comfortably above a 100-block RESPONSE_BLOCKS chunk

// Envelope is the wire-level message shape: {"type":..., "data":...}.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func encodeEnvelope(t MessageType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("p2p: encode %s payload: %w", t, err)
	}
	env := Envelope{Type: t, Data: raw}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("p2p: encode %s envelope: %w", t, err)
	}
	return out, nil
}

// HandshakePayload is exchanged on connect.
type HandshakePayload struct {
	ProtocolVersion int    `json:"protocolVersion"`
	ChainID         string `json:"chainId"`
	GenesisHash     string `json:"genesisHash"`
	NodeVersion     string `json:"nodeVersion"`
	CurrentHeight   uint64 `json:"currentHeight"`
}

// VersionRejectPayload explains why a handshake was refused.
type VersionRejectPayload struct {
	Reason   string `json:"reason"`
	Expected string `json:"expected"`
	Got      string `json:"got"`
}

// BlocksPayload carries a list of blocks, used for RESPONSE_BLOCKCHAIN
// (tip only) and QUERY_ALL responses (full chain).
type BlocksPayload struct {
	Blocks []*ledger.Block `json:"blocks"`
}

// QueryBlocksFromPayload requests a bounded historical range.
type QueryBlocksFromPayload struct {
	FromHeight uint64 `json:"fromHeight"`
	Limit      int    `json:"limit"`
}

// ResponseBlocksPayload answers QueryBlocksFromPayload; HasMore signals the
// requester should issue another QUERY_BLOCKS_FROM to continue.
type ResponseBlocksPayload struct {
	Blocks  []*ledger.Block `json:"blocks"`
	HasMore bool            `json:"hasMore"`
}

// TransactionPoolPayload carries the set of pending mempool transactions.
type TransactionPoolPayload struct {
	Transactions []*ledger.Transaction `json:"transactions"`
}

// PeersPayload carries a set of known peer addresses for peer exchange.
type PeersPayload struct {
	Addrs []string `json:"addrs"`
}

// maxChunkBlocks bounds a single RESPONSE_BLOCKS chunk to keep per-peer
// sync bandwidth bounded.
const maxChunkBlocks = 100

// maxPeersToShare bounds a single RESPONSE_PEERS answer.
const maxPeersToShare = 20
