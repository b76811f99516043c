package mempool

import (
	"encoding/json"
	"sync"
)

// Class orders transactions inside a block. Lower classes run first.
type Class int

const (
	// ClassNonOrder covers admin messages, swaps, conversions and transfers
	ClassNonOrder Class = iota
	ClassCancel
	ClassSubmit
	// ClassMatch covers execute_order_book_pair and distribute_reward so a
	// block's matching pass sees every order placed in the same block
	ClassMatch

	numClasses
)

func (c Class) String() string {
	switch c {
	case ClassNonOrder:
		return "non_order"
	case ClassCancel:
		return "cancel"
	case ClassSubmit:
		return "submit"
	case ClassMatch:
		return "match"
	}
	return "unknown"
}

// ClassifyRaw reads the envelope type of a raw transaction.
// Malformed input is classed as non-order; the app rejects it on execution.
func ClassifyRaw(b []byte) Class {
	if len(b) == 0 || b[0] != '{' {
		return ClassNonOrder
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return ClassNonOrder
	}
	switch envelope.Type {
	case "cancel_order":
		return ClassCancel
	case "submit_order":
		return ClassSubmit
	case "execute_order_book_pair", "distribute_reward":
		return ClassMatch
	default:
		return ClassNonOrder
	}
}

// Mempool keeps one FIFO queue per class
type Mempool struct {
	mu     sync.Mutex
	queues [numClasses][][]byte
}

func NewMempool() *Mempool {
	return &Mempool{}
}

// PushRaw classifies and enqueues a copy of b
func (m *Mempool) PushRaw(b []byte) Class {
	cp := append([]byte(nil), b...)
	c := ClassifyRaw(b)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[c] = append(m.queues[c], cp)
	return c
}

// SelectForProposal removes and returns up to maxBytes of transactions in
// class order. Selection stops at the first transaction that does not fit so
// a later class never overtakes an earlier one. maxBytes <= 0 means no limit.
func (m *Mempool) SelectForProposal(maxBytes int64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	var used int64
	for c := range m.queues {
		q := m.queues[c]
		for len(q) > 0 {
			n := int64(len(q[0]))
			if maxBytes > 0 && used+n > maxBytes {
				m.queues[c] = q
				return out
			}
			out = append(out, q[0])
			used += n
			q = q[1:]
		}
		m.queues[c] = nil
	}
	return out
}

// Len returns total pending txs
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, q := range m.queues {
		n += len(q)
	}
	return n
}
