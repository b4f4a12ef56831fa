package blocksource

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/syscoin-index/sysindex/pkg/wire"
)

func buildBlockFile(t *testing.T, dir, name string, blocks []*wire.Block) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var buf []byte
	for _, b := range blocks {
		raw := b.Serialize()
		buf = append(buf, wire.MagicMainnet[:]...)
		length := make([]byte, 4)
		binary.LittleEndian.PutUint32(length, uint32(len(raw)))
		buf = append(buf, length...)
		buf = append(buf, raw...)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatalf("write block file: %v", err)
	}
	return path
}

func makeBlock(prev [32]byte, nonce uint32) *wire.Block {
	hdr := wire.Header{PrevHash: prev, Time: 1700000000, Bits: 0x1d00ffff, Nonce: nonce}
	return &wire.Block{Header: hdr, Transactions: nil}
}

func TestBulkSourceIndexesAndFetches(t *testing.T) {
	dir := t.TempDir()
	genesis := makeBlock([32]byte{}, 1)
	second := makeBlock(genesis.Hash(), 2)
	buildBlockFile(t, dir, "blk00000.dat", []*wire.Block{genesis, second})

	src, err := OpenBulk(dir)
	if err != nil {
		t.Fatalf("OpenBulk: %v", err)
	}
	defer src.Close()

	if src.Len() != 2 {
		t.Fatalf("expected 2 indexed blocks, got %d", src.Len())
	}

	blk, err := src.Fetch(context.Background(), genesis.Hash(), 0)
	if err != nil {
		t.Fatalf("Fetch genesis: %v", err)
	}
	if blk.Hash != genesis.Hash() {
		t.Fatalf("hash mismatch")
	}
}

func TestBulkSourceReturnsNotIndexedForUnknownHash(t *testing.T) {
	dir := t.TempDir()
	src, err := OpenBulk(dir)
	if err != nil {
		t.Fatalf("OpenBulk: %v", err)
	}
	defer src.Close()

	_, err = src.Fetch(context.Background(), [32]byte{0xaa}, 0)
	if err != ErrNotIndexed {
		t.Fatalf("expected ErrNotIndexed, got %v", err)
	}
}

func TestChooseModePrefersBulkOnlyWhenStoreEmptyAndNotForced(t *testing.T) {
	if ChooseMode(true, false) != ModeBulk {
		t.Fatalf("expected bulk mode for an empty store")
	}
	if ChooseMode(true, true) != ModeRPC {
		t.Fatalf("expected rpc mode when jsonrpc_import is forced")
	}
	if ChooseMode(false, false) != ModeRPC {
		t.Fatalf("expected rpc mode for a non-empty store")
	}
}
