package storage

import (
	"bytes"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTxnCommitAndDiscard(t *testing.T) {
	db := openTestDB(t)

	txn := db.Begin()
	if err := txn.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	// Reads inside the transaction see its own writes
	if v, _ := txn.Get([]byte("a")); string(v) != "1" {
		t.Fatalf("txn read = %q, want 1", v)
	}
	if v, _ := db.Get([]byte("a")); v != nil {
		t.Fatalf("uncommitted write visible: %q", v)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if v, _ := db.Get([]byte("a")); string(v) != "1" {
		t.Fatalf("committed read = %q, want 1", v)
	}

	txn = db.Begin()
	_ = txn.Set([]byte("b"), []byte("2"))
	_ = txn.Delete([]byte("a"))
	txn.Discard()
	if v, _ := db.Get([]byte("b")); v != nil {
		t.Errorf("discarded write visible: %q", v)
	}
	if v, _ := db.Get([]byte("a")); string(v) != "1" {
		t.Errorf("discarded delete applied")
	}
	if err := txn.Set([]byte("c"), nil); err != ErrTxnClosed {
		t.Errorf("set after discard err = %v, want ErrTxnClosed", err)
	}
}

func TestTxnOpsRecorded(t *testing.T) {
	db := openTestDB(t)
	txn := db.Begin()
	defer txn.Discard()

	_ = txn.Set([]byte("k1"), []byte("v1"))
	_ = txn.Delete([]byte("k2"))

	ops := txn.Ops()
	if len(ops) != 2 {
		t.Fatalf("ops = %d, want 2", len(ops))
	}
	if string(ops[0].Key) != "k1" || ops[0].Delete {
		t.Errorf("op[0] = %+v", ops[0])
	}
	if string(ops[1].Key) != "k2" || !ops[1].Delete {
		t.Errorf("op[1] = %+v", ops[1])
	}
}

func TestPrefixStoreIteration(t *testing.T) {
	db := openTestDB(t)
	txn := db.Begin()
	ns := Prefix(txn, []byte("c:"))
	other := Prefix(txn, []byte("d:"))

	for _, k := range []string{"3", "1", "2"} {
		if err := ns.Set([]byte(k), []byte("v"+k)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	_ = other.Set([]byte("0"), []byte("x"))
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tests := []struct {
		name    string
		reverse bool
		want    []string
	}{
		{"ascending", false, []string{"1", "2", "3"}},
		{"descending", true, []string{"3", "2", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iter, err := PrefixReader(db, []byte("c:")).Iterator(nil, nil, tt.reverse)
			if err != nil {
				t.Fatalf("iterator: %v", err)
			}
			defer iter.Close()
			var got []string
			for ; iter.Valid(); iter.Next() {
				got = append(got, string(iter.Key()))
			}
			if len(got) != len(tt.want) {
				t.Fatalf("keys = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("keys = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestPrefixEnd(t *testing.T) {
	tests := []struct {
		in, want []byte
	}{
		{[]byte("ab"), []byte("ac")},
		{[]byte{0x01, 0xff}, []byte{0x02}},
		{[]byte{0xff, 0xff}, nil},
	}
	for _, tt := range tests {
		if got := PrefixEnd(tt.in); !bytes.Equal(got, tt.want) {
			t.Errorf("PrefixEnd(%x) = %x, want %x", tt.in, got, tt.want)
		}
	}
}

func TestBlockRecords(t *testing.T) {
	db := openTestDB(t)

	if rec, err := LatestBlock(db); err != nil || rec != nil {
		t.Fatalf("latest before genesis = %v, %v", rec, err)
	}

	txn := db.Begin()
	for h := int64(1); h <= 3; h++ {
		if err := SaveBlock(txn, BlockRecord{Height: h, Time: 1000 + h}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rec, err := LatestBlock(db)
	if err != nil || rec == nil || rec.Height != 3 {
		t.Fatalf("latest = %+v, %v", rec, err)
	}
	rec, _ = LoadBlock(db, 2)
	if rec == nil || rec.Time != 1002 {
		t.Errorf("block 2 = %+v", rec)
	}
	if rec, _ := LoadBlock(db, 9); rec != nil {
		t.Errorf("unknown block = %+v", rec)
	}
}
