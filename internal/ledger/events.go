package ledger

// Events exposes the Ledger's block/transaction notifications as
// channels, so subscribers never reenter the Ledger from inside a
// broadcast. The P2P layer is the sole expected subscriber.
type Events struct {
	BlockMined  chan *Block
	TxAdded     chan *Transaction
}

func newEvents() *Events {
	return &Events{
		// Buffered so a slow/absent subscriber cannot stall block
		// production or transaction admission.
		BlockMined: make(chan *Block, 64),
		TxAdded:    make(chan *Transaction, 256),
	}
}

func (e *Events) publishBlock(b *Block) {
	select {
	case e.BlockMined <- b:
	default:
		// Subscriber isn't keeping up; drop rather than block the
		// producer or the accepting goroutine.
	}
}

func (e *Events) publishTx(tx *Transaction) {
	select {
	case e.TxAdded <- tx:
	default:
	}
}
