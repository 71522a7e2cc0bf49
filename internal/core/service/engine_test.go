package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/internal/savestore"
	"github.com/yndnr/storyline-go/internal/storage/kvstore"
	"github.com/yndnr/storyline-go/internal/storage/objstore"
)

type backends struct {
	session *kvstore.Memory
	legacy  *kvstore.Memory
	db      *objstore.Memory
}

func newBackends() backends {
	return backends{session: kvstore.NewMemory(0), legacy: kvstore.NewMemory(0), db: objstore.NewMemory()}
}

func newEngine(t *testing.T, b backends) *Engine {
	t.Helper()
	ctx := context.Background()
	e, err := New(ctx, Config{
		StoryID:         "story",
		Seed:            "fixed seed",
		MaxStates:       50,
		MaxExpired:      50,
		SessionStore:    b.session,
		SessionDepth:    -1,
		SessionInterval: -1,
		Opener:          b.db,
		Legacy:          b.legacy,
		Settings:        domain.DefaultSettings(),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func play(t *testing.T, e *Engine, titles ...string) {
	t.Helper()
	for _, title := range titles {
		if _, err := e.Create(title); err != nil {
			t.Fatalf("Create(%q): %v", title, err)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{Legacy: kvstore.NewMemory(0)}); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("missing session store error = %v", err)
	}
	if _, err := New(ctx, Config{SessionStore: kvstore.NewMemory(0)}); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("missing legacy store error = %v", err)
	}
}

func TestEngine_Navigation(t *testing.T) {
	e := newEngine(t, newBackends())
	play(t, e, "Start", "Forest")

	if !e.GoTo(0) {
		t.Fatal("GoTo(0) = false")
	}
	play(t, e, "Cave")

	if diff := cmp.Diff([]string{"Start", "Cave"}, e.Machine().Titles()); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}
	if !e.Backward() || e.Machine().Index() != 0 {
		t.Error("Backward did not move to 0")
	}
	if e.Backward() {
		t.Error("Backward at 0 reported a move")
	}
	if !e.Forward() || e.Machine().Index() != 1 {
		t.Error("Forward did not move to 1")
	}
}

func TestEngine_SaveLoad(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newBackends())

	e.Machine().SetVariable("gold", float64(5))
	play(t, e, "Start", "Market")
	if st, err := e.Save(ctx, 1, "Shopping", domain.Metadata{SaveName: "before buying"}); st != savestore.StatusOK {
		t.Fatalf("Save = %v, %v", st, err)
	}

	e.Machine().SetVariable("gold", float64(0))
	play(t, e, "Broke")

	if err := e.Load(ctx, 1); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"Start", "Market"}, e.Machine().Titles()); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}
	if v, _ := e.Machine().Variable("gold"); v != float64(5) {
		t.Errorf("gold = %v, want 5", v)
	}

	details, err := e.Details(ctx)
	if err != nil || len(details) != 1 {
		t.Fatalf("Details = %v, %v", details, err)
	}
	if details[0].Data.Title != "Shopping" || details[0].Data.ID != "story" {
		t.Errorf("details = %+v", details[0].Data)
	}

	if st, _ := e.Delete(ctx, 1); st != savestore.StatusOK {
		t.Errorf("Delete status = %v", st)
	}
	if err := e.Load(ctx, 1); !errors.Is(err, domain.ErrSlotNotFound) {
		t.Errorf("Load after Delete error = %v, want ErrSlotNotFound", err)
	}
}

func TestEngine_Continue(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, newBackends())

	if _, ok, err := e.Continue(ctx); ok || err != nil {
		t.Fatalf("Continue with no saves = %v, %v", ok, err)
	}

	play(t, e, "A", "B")
	if st, err := e.Save(ctx, 2, "", domain.Metadata{}); st != savestore.StatusOK {
		t.Fatalf("Save = %v, %v", st, err)
	}
	time.Sleep(2 * time.Millisecond)
	play(t, e, "C")
	if st, err := e.Autosave(ctx); st != savestore.StatusOK {
		t.Fatalf("Autosave = %v, %v", st, err)
	}

	// The autosave shares the playthrough of slot 2, which wins.
	slot, ok, err := e.Continue(ctx)
	if err != nil || !ok || slot != 2 {
		t.Fatalf("Continue = %d, %v, %v; want slot 2", slot, ok, err)
	}
	if e.Machine().Len() != 2 {
		t.Errorf("Len() = %d, want 2", e.Machine().Len())
	}

	if st, _ := e.Clear(ctx); st != savestore.StatusOK {
		t.Errorf("Clear status = %v", st)
	}
	if details, _ := e.Details(ctx); len(details) != 0 {
		t.Errorf("details after Clear = %d", len(details))
	}
}

func TestEngine_SessionRestore(t *testing.T) {
	ctx := context.Background()
	b := newBackends()

	first := newEngine(t, b)
	play(t, first, "One", "Two", "Three")
	first.GoTo(1)
	if err := first.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := newEngine(t, b)
	ok, err := second.RestoreSession(ctx)
	if err != nil || !ok {
		t.Fatalf("RestoreSession = %v, %v", ok, err)
	}
	if diff := cmp.Diff([]string{"One", "Two", "Three"}, second.Machine().Titles()); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}
	if second.Machine().Index() != 1 {
		t.Errorf("Index() = %d, want 1", second.Machine().Index())
	}
}

func TestEngine_PersistsOnHistoryChange(t *testing.T) {
	ctx := context.Background()
	b := newBackends()
	e := newEngine(t, b)
	play(t, e, "Only")

	if _, err := b.session.Get(ctx, "storyline.session"); err != nil {
		t.Errorf("no session snapshot after Create: %v", err)
	}
}

func TestEngine_UpdateSettings(t *testing.T) {
	ctx := context.Background()
	b := newBackends()
	e := newEngine(t, b)

	got, err := e.UpdateSettings(ctx, func(s *domain.Settings) {
		s.UseDelta = false
		s.WarnDelete = false
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if got.UseDelta || got.WarnDelete {
		t.Errorf("settings = %+v", got)
	}
	if e.Saves().Settings().UseDelta {
		t.Error("save store did not receive the settings")
	}

	play(t, e, "A", "B")
	if st, _ := e.Save(ctx, 1, "", domain.Metadata{}); st != savestore.StatusOK {
		t.Fatal("Save failed")
	}
	rec, err := e.Saves().Get(ctx, 1)
	if err != nil || rec.Data.Compressed() {
		t.Errorf("slot 1 compressed with UseDelta off (err=%v)", err)
	}

	reloaded := newEngine(t, b)
	if reloaded.Settings().UseDelta {
		t.Error("settings not persisted")
	}
}

func TestEngine_DegradedBackend(t *testing.T) {
	ctx := context.Background()
	b := newBackends()
	b.db.FailOpen(errors.New("private mode"))
	e := newEngine(t, b)

	if !e.Saves().Degraded() {
		t.Fatal("Degraded() = false")
	}
	play(t, e, "A")
	if st, err := e.Save(ctx, 3, "", domain.Metadata{}); st != savestore.StatusOK {
		t.Fatalf("Save = %v, %v", st, err)
	}
	if _, err := b.legacy.Get(ctx, savestore.LegacyKey(3)); err != nil {
		t.Errorf("save not in legacy store: %v", err)
	}
	if err := e.Load(ctx, 3); err != nil {
		t.Errorf("Load: %v", err)
	}
}
