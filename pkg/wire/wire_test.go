package wire

import (
	"bytes"
	"testing"

	"github.com/syscoin-index/sysindex/pkg/chainhash"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000, ^uint64(0)}
	for _, n := range cases {
		buf := AppendVarInt(nil, n)
		if len(buf) != VarIntSize(n) {
			t.Fatalf("VarIntSize(%d) = %d, encoded length %d", n, VarIntSize(n), len(buf))
		}
		got, err := ReadVarInt(bytes.NewReader(buf))
		if err != nil {
			t.Fatalf("ReadVarInt(%d): %v", n, err)
		}
		if got != n {
			t.Fatalf("round trip: got %d want %d", got, n)
		}
	}
}

func TestOutpointRoundTrip(t *testing.T) {
	op := Outpoint{TxID: chainhash.Sum([]byte("tx")), Vout: 7}
	buf := op.Append(nil)
	got, rest, err := ParseOutpoint(buf)
	if err != nil {
		t.Fatalf("ParseOutpoint: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected leftover bytes: %d", len(rest))
	}
	if got != op {
		t.Fatalf("round trip mismatch: %+v != %+v", got, op)
	}
}

func TestTransactionRoundTripLegacy(t *testing.T) {
	tx := &Transaction{
		Version: 1,
		Inputs: []TxIn{{
			PrevOut:  Outpoint{TxID: chainhash.Sum([]byte("prev")), Vout: 0},
			Script:   []byte{0x01, 0x02},
			Sequence: 0xffffffff,
		}},
		Outputs: []TxOut{{
			Amount: PlainAmount(5000000000),
			Script: []byte{0xa9, 0x14},
		}},
		LockTime: 0,
	}
	encoded := tx.Serialize()
	decoded, err := ParseTransactionBytes(encoded)
	if err != nil {
		t.Fatalf("ParseTransactionBytes: %v", err)
	}
	if decoded.TxID() != tx.TxID() {
		t.Fatalf("txid mismatch after round trip")
	}
	if !bytes.Equal(decoded.Serialize(), encoded) {
		t.Fatalf("serialize mismatch after round trip")
	}
}

func TestTransactionRoundTripSegwit(t *testing.T) {
	tx := &Transaction{
		Version: 2,
		Inputs: []TxIn{{
			PrevOut:  Outpoint{TxID: chainhash.Sum([]byte("prev")), Vout: 1},
			Script:   nil,
			Sequence: 0xffffffff,
			Witness:  [][]byte{{0x30, 0x44}, {0x02, 0x21}},
		}},
		Outputs: []TxOut{{Amount: PlainAmount(1000), Script: []byte{0x00, 0x14}}},
	}
	encoded := tx.Serialize()
	decoded, err := ParseTransactionBytes(encoded)
	if err != nil {
		t.Fatalf("ParseTransactionBytes: %v", err)
	}
	if len(decoded.Inputs[0].Witness) != 2 {
		t.Fatalf("witness not preserved: %v", decoded.Inputs[0].Witness)
	}
	// TxID must exclude witness data (BIP-141): a legacy-equivalent
	// transaction with the same non-witness fields has the same id.
	legacy := &Transaction{Version: tx.Version, LockTime: tx.LockTime, Outputs: tx.Outputs}
	legacy.Inputs = []TxIn{{PrevOut: tx.Inputs[0].PrevOut, Script: tx.Inputs[0].Script, Sequence: tx.Inputs[0].Sequence}}
	if decoded.TxID() != legacy.TxID() {
		t.Fatalf("witness data leaked into txid")
	}
}

func TestHeaderHashAndRoundTrip(t *testing.T) {
	h := &Header{
		Version:    1,
		PrevHash:   chainhash.Sum([]byte("prev")),
		MerkleRoot: chainhash.Sum([]byte("merkle")),
		Time:       1700000000,
		Bits:       0x1d00ffff,
		Nonce:      12345,
	}
	encoded := h.Serialize()
	if len(encoded) != HeaderSize {
		t.Fatalf("header size = %d, want %d", len(encoded), HeaderSize)
	}
	decoded, err := ParseHeader(encoded)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if decoded.Hash() != h.Hash() {
		t.Fatalf("hash mismatch after round trip")
	}
	if h.Hash() != chainhash.Sum(encoded) {
		t.Fatalf("Hash() must equal double-SHA256 of the serialized header")
	}
}

func TestBlockRoundTrip(t *testing.T) {
	tx := &Transaction{Version: 1, Outputs: []TxOut{{Amount: PlainAmount(100), Script: []byte{0x01}}}}
	blk := &Block{
		Header:       Header{Version: 1, Time: 1, Bits: 1, Nonce: 1},
		Transactions: []*Transaction{tx},
	}
	encoded := blk.Serialize()
	decoded, err := ParseBlockBytes(encoded)
	if err != nil {
		t.Fatalf("ParseBlockBytes: %v", err)
	}
	if decoded.Hash() != blk.Hash() {
		t.Fatalf("block hash mismatch")
	}
	if len(decoded.Transactions) != 1 {
		t.Fatalf("expected 1 tx, got %d", len(decoded.Transactions))
	}
}

func TestMerkleRootSingleTx(t *testing.T) {
	h := chainhash.Sum([]byte("only"))
	if got := MerkleRoot([]chainhash.Hash{h}); got != h {
		t.Fatalf("single-tx merkle root should equal the txid")
	}
}

func TestMerkleRootOddDuplicatesLast(t *testing.T) {
	a := chainhash.Sum([]byte("a"))
	b := chainhash.Sum([]byte("b"))
	c := chainhash.Sum([]byte("c"))
	withDup := MerkleRoot([]chainhash.Hash{a, b, c, c})
	odd := MerkleRoot([]chainhash.Hash{a, b, c})
	if odd != withDup {
		t.Fatalf("odd-count merkle root should duplicate the last hash")
	}
}

func TestScanRecordsSkipsUnknownMagicAndPadding(t *testing.T) {
	var buf []byte
	// one valid mainnet record
	body := []byte("block-bytes")
	buf = append(buf, MagicMainnet[:]...)
	buf = append(buf, 0, 0, 0, 0)
	buf[len(buf)-4] = byte(len(body))
	buf = append(buf, body...)
	// unknown magic byte run, then zero padding tail
	buf = append(buf, 0xAA, 0xBB, 0xCC, 0xDD, 0, 0, 0, 0)
	buf = append(buf, make([]byte, 16)...)

	var got []Record
	if err := ScanRecords(buf, func(r Record) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("ScanRecords: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if !bytes.Equal(got[0].Bytes, body) {
		t.Fatalf("record bytes mismatch: %q", got[0].Bytes)
	}
}
