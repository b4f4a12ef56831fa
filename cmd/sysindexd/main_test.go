package main

import (
	"testing"

	"github.com/syscoin-index/sysindex/internal/headerlist"
	"github.com/syscoin-index/sysindex/internal/store"
)

func newTestStore() *store.Store {
	mem := store.NewMemory()
	return &store.Store{
		Txstore: store.NewPrefixDB(mem, []byte("t/")),
		History: store.NewPrefixDB(mem, []byte("h/")),
		Cache:   store.NewPrefixDB(mem, []byte("c/")),
		Headers: store.NewPrefixDB(mem, []byte("d/")),
	}
}

// TestLoadHeaderListOnFreshStore exercises the very first run against a
// brand-new data directory, where the headers CF has never had a C row
// written: Get must return ErrNotFound, not (nil, nil), so loadHeaderList
// has to recognize that case explicitly rather than checking raw == nil.
func TestLoadHeaderListOnFreshStore(t *testing.T) {
	st := newTestStore()

	list, err := loadHeaderList(st)
	if err != nil {
		t.Fatalf("loadHeaderList on a fresh store should not error, got: %v", err)
	}
	if list.Len() != 0 {
		t.Fatalf("expected an empty header list, got length %d", list.Len())
	}
}

func TestLoadHeaderListRoundTripsAfterSave(t *testing.T) {
	st := newTestStore()

	if err := saveHeaderList(st, headerlist.New()); err != nil {
		t.Fatalf("saveHeaderList: %v", err)
	}
	list, err := loadHeaderList(st)
	if err != nil {
		t.Fatalf("loadHeaderList: %v", err)
	}
	if list.Len() != 0 {
		t.Fatalf("expected an empty but present header list, got length %d", list.Len())
	}
}
