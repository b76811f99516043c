package contract

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

// Env describes the block an invocation runs in.
type Env struct {
	BlockHeight     int64          `json:"block_height"`
	BlockTime       uint64         `json:"block_time"` // unix seconds
	ContractAddress common.Address `json:"contract_address"`
}

// MessageInfo carries the authenticated caller and any native funds already
// escrowed into the contract for this invocation.
type MessageInfo struct {
	Sender common.Address `json:"sender"`
	Funds  []asset.Asset  `json:"funds"`
}

// TokenReceive is delivered when a caller escrows token assets into a
// contract together with a hook message.
type TokenReceive struct {
	Sender common.Address `json:"sender"`
	Token  asset.Asset    `json:"token"`
}

// Context is everything a contract sees during one invocation. Store is the
// contract's own namespace inside the invocation's transaction.
type Context struct {
	Store   storage.KVStore
	Env     Env
	Info    MessageInfo
	Querier asset.BalanceQuerier
}

// Attribute is one key/value pair of structured output.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response is the outcome of a successful invocation: transfers the host
// executes from the contract's balance, plus attributes for indexers.
type Response struct {
	Transfers  []asset.Transfer `json:"transfers,omitempty"`
	Attributes []Attribute      `json:"attributes,omitempty"`
}

func NewResponse() *Response { return &Response{} }

func (r *Response) AddAttribute(key string, value any) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: fmt.Sprint(value)})
	return r
}

// AddTransfer skips zero amounts.
func (r *Response) AddTransfer(recipient common.Address, a asset.Asset) *Response {
	if a.Amount.IsZero() {
		return r
	}
	r.Transfers = append(r.Transfers, asset.Transfer{Recipient: recipient, Asset: a})
	return r
}

// Attribute returns the first value stored under key.
func (r *Response) Attribute(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Handler is the entry surface the host dispatches to.
type Handler interface {
	Execute(ctx *Context, msgType string, msg json.RawMessage) (*Response, error)
	Receive(ctx *Context, recv TokenReceive, msgType string, msg json.RawMessage) (*Response, error)
	Query(r storage.Reader, q asset.BalanceQuerier, query string, params json.RawMessage) (any, error)
}

// Decode unmarshals a message body, treating an empty body as "{}".
func Decode(msg json.RawMessage, v any) error {
	if len(msg) == 0 {
		msg = json.RawMessage("{}")
	}
	if err := json.Unmarshal(msg, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}
