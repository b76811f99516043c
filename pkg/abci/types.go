package abci

type RequestPrepareProposal struct{ Height, MaxTxBytes int64 }
type ResponsePrepareProposal struct{ Txs [][]byte }
type RequestProcessProposal struct {
	Height int64
	Txs    [][]byte
}
type ResponseProcessProposal struct{ Accept bool }
type RequestFinalizeBlock struct {
	Height    int64
	Timestamp int64 // Unix timestamp in seconds
	Txs       [][]byte
}

// Attribute is one key/value pair of an event
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is emitted by a successful transaction, typed by its message
type Event struct {
	Type       string      `json:"type"`
	Contract   string      `json:"contract,omitempty"`
	Attributes []Attribute `json:"attributes"`
}

// TxResult reports the outcome of one transaction. Code 0 is success.
type TxResult struct {
	Hash   string  `json:"hash"`
	Code   uint32  `json:"code"`
	Log    string  `json:"log,omitempty"`
	Events []Event `json:"events,omitempty"`
}

func (r TxResult) OK() bool { return r.Code == 0 }

type ResponseFinalizeBlock struct {
	TxResults []TxResult
	AppHash   [32]byte // Hash of application state after execution
}

type ResponseCommit struct {
	Height  int64
	AppHash [32]byte
}

// Application is the state machine driven by the block producer
type Application interface {
	PrepareProposal(RequestPrepareProposal) ResponsePrepareProposal
	ProcessProposal(RequestProcessProposal) ResponseProcessProposal
	FinalizeBlock(RequestFinalizeBlock) ResponseFinalizeBlock
	Commit() (ResponseCommit, error)
}
