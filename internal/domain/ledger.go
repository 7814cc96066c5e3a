package domain

// ConfirmationDepth is the network's view of how far a transaction has
// progressed. Modeled as a closed enum so the reconciler can branch
// exhaustively instead of comparing commitment strings.
type ConfirmationDepth int

const (
	ConfirmationUnknown ConfirmationDepth = iota
	ConfirmationProcessed
	ConfirmationConfirmed
	ConfirmationFinalized
	ConfirmationErrored
)

func (d ConfirmationDepth) String() string {
	switch d {
	case ConfirmationProcessed:
		return "processed"
	case ConfirmationConfirmed:
		return "confirmed"
	case ConfirmationFinalized:
		return "finalized"
	case ConfirmationErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// BlockAnchor ties a transaction to a recent blockhash and the block height
// after which the network considers it abandoned.
type BlockAnchor struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SignatureStatus is the polled status of a broadcast transaction.
type SignatureStatus struct {
	Depth       ConfirmationDepth
	Err         string
	Slot        uint64
	TxHash      string
}
