package mempool

import (
	"testing"
)

func TestClassifyRaw(t *testing.T) {
	tests := []struct {
		name     string
		tx       string
		expected Class
	}{
		{"submit order", `{"type":"submit_order","msg":{"direction":"buy"},"signature":"0x1234"}`, ClassSubmit},
		{"cancel order", `{"type":"cancel_order","msg":{"order_id":1},"signature":"0xabcd"}`, ClassCancel},
		{"execute pair", `{"type":"execute_order_book_pair","signature":"0x01"}`, ClassMatch},
		{"distribute reward", `{"type":"distribute_reward","signature":"0x01"}`, ClassMatch},
		{"swap", `{"type":"swap","signature":"0x01"}`, ClassNonOrder},
		{"transfer", `{"type":"transfer","signature":"0x01"}`, ClassNonOrder},
		{"invalid JSON", `{"invalid": "json"`, ClassNonOrder},
		{"non-JSON", "UNKNOWN:foo", ClassNonOrder},
		{"empty transaction", "", ClassNonOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyRaw([]byte(tt.tx))
			if got != tt.expected {
				t.Errorf("ClassifyRaw() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMempool_Ordering(t *testing.T) {
	m := NewMempool()

	submit1 := `{"type":"submit_order","nonce":1}`
	submit2 := `{"type":"submit_order","nonce":2}`
	cancel1 := `{"type":"cancel_order","nonce":3}`
	execute := `{"type":"execute_order_book_pair","nonce":4}`
	cancel2 := `{"type":"cancel_order","nonce":5}`
	admin := `{"type":"update_config","nonce":6}`

	for _, tx := range []string{execute, submit1, cancel1, submit2, admin, cancel2} {
		m.PushRaw([]byte(tx))
	}

	txs := m.SelectForProposal(10000)
	expectOrder := []string{admin, cancel1, cancel2, submit1, submit2, execute}
	if len(txs) != len(expectOrder) {
		t.Fatalf("expected %d txs, got %d", len(expectOrder), len(txs))
	}
	for i, expected := range expectOrder {
		if string(txs[i]) != expected {
			t.Errorf("tx[%d] mismatch\ngot:  %q\nwant: %q", i, string(txs[i]), expected)
		}
	}
	if m.Len() != 0 {
		t.Errorf("expected empty mempool, got %d", m.Len())
	}
}

func TestMempool_MaxBytes(t *testing.T) {
	m := NewMempool()

	m.PushRaw([]byte("N:1"))
	m.PushRaw([]byte("N:2"))
	m.PushRaw([]byte("N:3"))

	txs := m.SelectForProposal(6)
	if len(txs) != 2 {
		t.Errorf("expected 2 txs with maxBytes=6, got %d", len(txs))
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 tx remaining, got %d", m.Len())
	}

	txs = m.SelectForProposal(0)
	if len(txs) != 1 || string(txs[0]) != "N:3" {
		t.Errorf("expected remaining N:3, got %q", txs)
	}
}

func TestMempool_NoOvertakeWhenFull(t *testing.T) {
	m := NewMempool()
	bigCancel := `{"type":"cancel_order","pad":"xxxxxxxxxxxxxxxxxxxxxxxx"}`
	submit := `{"type":"submit_order"}`
	m.PushRaw([]byte(bigCancel))
	m.PushRaw([]byte(submit))

	txs := m.SelectForProposal(int64(len(submit)))
	if len(txs) != 0 {
		t.Errorf("submit overtook a pending cancel: %q", txs)
	}
	if m.Len() != 2 {
		t.Errorf("expected 2 pending, got %d", m.Len())
	}
}

func TestMempool_PushCopies(t *testing.T) {
	m := NewMempool()
	buf := []byte(`{"type":"swap"}`)
	m.PushRaw(buf)
	buf[2] = 'X'

	txs := m.SelectForProposal(0)
	if string(txs[0]) != `{"type":"swap"}` {
		t.Errorf("mempool aliases caller buffer: %q", txs[0])
	}
}
