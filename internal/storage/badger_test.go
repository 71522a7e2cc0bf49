package storage

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/storyline-go/internal/storage/objstore"
)

func createTables(s objstore.Schema, oldVersion, newVersion int) error {
	if oldVersion < 1 {
		if err := s.CreateTable("saves"); err != nil {
			return err
		}
		if err := s.CreateTable("details"); err != nil {
			return err
		}
	}
	return nil
}

func newInMemoryOpener(t *testing.T) *BadgerOpener {
	t.Helper()
	cfg := DefaultBadgerConfig("")
	cfg.InMemory = true
	cfg.CacheSize = 1 << 20
	o, err := NewBadgerOpener(cfg, slog.Default())
	if err != nil {
		t.Fatalf("NewBadgerOpener: %v", err)
	}
	return o
}

func waitCommit(t *testing.T, tx objstore.Tx) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return tx.Commit().Wait(ctx)
}

func TestBadgerOpener_RequiresDir(t *testing.T) {
	if _, err := NewBadgerOpener(BadgerConfig{}, nil); err == nil {
		t.Error("NewBadgerOpener without dir should fail")
	}
}

func TestBadgerDB_Operations(t *testing.T) {
	o := newInMemoryOpener(t)
	db, err := o.Open(context.Background(), "saves", 1, createTables)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if got := db.Tables(); len(got) != 2 || got[0] != "details" || got[1] != "saves" {
		t.Fatalf("Tables() = %v", got)
	}

	t.Run("add get and ordering", func(t *testing.T) {
		tx, err := db.Transaction([]string{"saves"}, objstore.ReadWrite)
		if err != nil {
			t.Fatalf("Transaction: %v", err)
		}
		tbl, _ := tx.Table("saves")
		for _, slot := range []int{10, 0, 2, -1} {
			if err := tbl.Add(slot, []byte{byte(slot + 1)}); err != nil {
				t.Fatalf("Add(%d): %v", slot, err)
			}
		}
		if err := tbl.Add(2, []byte("dup")); !errors.Is(err, objstore.ErrKeyExists) {
			t.Errorf("duplicate Add = %v, want ErrKeyExists", err)
		}
		if err := waitCommit(t, tx); err != nil {
			t.Fatalf("Commit: %v", err)
		}

		ro, _ := db.Transaction([]string{"saves"}, objstore.ReadOnly)
		defer ro.Abort()
		tbl, _ = ro.Table("saves")
		all, err := tbl.GetAll()
		if err != nil {
			t.Fatalf("GetAll: %v", err)
		}
		want := []int{-1, 0, 2, 10}
		if len(all) != len(want) {
			t.Fatalf("GetAll = %+v", all)
		}
		for i, e := range all {
			if e.Key != want[i] {
				t.Errorf("GetAll[%d].Key = %d, want %d", i, e.Key, want[i])
			}
		}
		if _, err := tbl.Get(99); !errors.Is(err, objstore.ErrNotFound) {
			t.Errorf("Get(99) = %v, want ErrNotFound", err)
		}
		if err := tbl.Add(5, nil); !errors.Is(err, objstore.ErrReadOnly) {
			t.Errorf("Add in read-only tx = %v, want ErrReadOnly", err)
		}
	})

	t.Run("delete then add in one transaction", func(t *testing.T) {
		tx, _ := db.Transaction([]string{"saves", "details"}, objstore.ReadWrite)
		s, _ := tx.Table("saves")
		d, _ := tx.Table("details")
		if err := s.Delete(2); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := s.Add(2, []byte("new")); err != nil {
			t.Fatalf("Add after Delete: %v", err)
		}
		if err := d.Add(2, []byte("details")); err != nil {
			t.Fatalf("Add details: %v", err)
		}
		if err := waitCommit(t, tx); err != nil {
			t.Fatalf("Commit: %v", err)
		}

		ro, _ := db.Transaction([]string{"saves", "details"}, objstore.ReadOnly)
		defer ro.Abort()
		s, _ = ro.Table("saves")
		if v, _ := s.Get(2); string(v) != "new" {
			t.Errorf("Get(2) = %q", v)
		}
	})

	t.Run("clear", func(t *testing.T) {
		tx, _ := db.Transaction([]string{"saves"}, objstore.ReadWrite)
		s, _ := tx.Table("saves")
		if err := s.Clear(); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if err := waitCommit(t, tx); err != nil {
			t.Fatalf("Commit: %v", err)
		}

		ro, _ := db.Transaction([]string{"saves", "details"}, objstore.ReadOnly)
		defer ro.Abort()
		s, _ = ro.Table("saves")
		if all, _ := s.GetAll(); len(all) != 0 {
			t.Errorf("saves after Clear = %+v", all)
		}
		d, _ := ro.Table("details")
		if all, _ := d.GetAll(); len(all) != 1 {
			t.Errorf("Clear touched another table: %+v", all)
		}
	})

	t.Run("abort discards", func(t *testing.T) {
		tx, _ := db.Transaction([]string{"details"}, objstore.ReadWrite)
		d, _ := tx.Table("details")
		_ = d.Add(50, []byte("x"))
		tx.Abort()
		if _, err := d.Get(50); !errors.Is(err, objstore.ErrTxDone) {
			t.Errorf("Get after Abort = %v, want ErrTxDone", err)
		}

		ro, _ := db.Transaction([]string{"details"}, objstore.ReadOnly)
		defer ro.Abort()
		d, _ = ro.Table("details")
		if _, err := d.Get(50); !errors.Is(err, objstore.ErrNotFound) {
			t.Errorf("aborted row visible: %v", err)
		}
	})

	t.Run("unknown table", func(t *testing.T) {
		if _, err := db.Transaction([]string{"nope"}, objstore.ReadOnly); !errors.Is(err, objstore.ErrTableNotFound) {
			t.Errorf("Transaction(nope) = %v, want ErrTableNotFound", err)
		}
	})
}

func TestBadgerDB_PersistsAcrossReopen(t *testing.T) {
	cfg := DefaultBadgerConfig(t.TempDir())
	cfg.CacheSize = 1 << 20
	cfg.ValueLogFileSize = 1 << 20
	cfg.GCInterval = "1h"

	o, err := NewBadgerOpener(cfg, slog.Default())
	if err != nil {
		t.Fatalf("NewBadgerOpener: %v", err)
	}
	ctx := context.Background()

	db, err := o.Open(ctx, "game", 1, createTables)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tx, _ := db.Transaction([]string{"saves"}, objstore.ReadWrite)
	s, _ := tx.Table("saves")
	_ = s.Add(1, []byte("slot one"))
	if err := waitCommit(t, tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	upgrades := 0
	db, err = o.Open(ctx, "game", 1, func(objstore.Schema, int, int) error {
		upgrades++
		return nil
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if upgrades != 0 {
		t.Error("upgrade ran on an up-to-date database")
	}

	ro, _ := db.Transaction([]string{"saves"}, objstore.ReadOnly)
	defer ro.Abort()
	s, _ = ro.Table("saves")
	if v, err := s.Get(1); err != nil || string(v) != "slot one" {
		t.Errorf("Get(1) = %q, %v", v, err)
	}

	if _, err := o.Open(ctx, "game", 0, nil); !errors.Is(err, objstore.ErrVersion) {
		t.Errorf("downgrade Open = %v, want ErrVersion", err)
	}
}

func TestBadgerOpener_FailedUpgrade(t *testing.T) {
	o := newInMemoryOpener(t)
	boom := errors.New("boom")
	_, err := o.Open(context.Background(), "x", 1, func(s objstore.Schema, _, _ int) error {
		_ = s.CreateTable("saves")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Open = %v, want boom", err)
	}
}

func TestBadgerOpener_Metrics(t *testing.T) {
	o := newInMemoryOpener(t)
	reg := prometheus.NewRegistry()
	o.RegisterMetrics(reg)

	db, err := o.Open(context.Background(), "m", 1, createTables)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	tx, _ := db.Transaction([]string{"saves"}, objstore.ReadWrite)
	s, _ := tx.Table("saves")
	_ = s.Add(1, []byte("x"))
	if err := waitCommit(t, tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got := testutil.ToFloat64(o.metricsCommits.WithLabelValues("m", "ok")); got != 1 {
		t.Errorf("commits_total{result=ok} = %v, want 1", got)
	}
}

func TestSlotKeyRoundTrip(t *testing.T) {
	for _, slot := range []int{-100, -1, 0, 1, 7, 1 << 40} {
		if got := slotFromKey(rowKey("saves", slot)); got != slot {
			t.Errorf("slotFromKey(rowKey(%d)) = %d", slot, got)
		}
	}
}
