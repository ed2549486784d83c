package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kapu/chess-arena-go/internal/session"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStoreClient(rdb, time.Hour), mr
}

func sampleSession(roomID string) *session.Session {
	creator := session.Identity{AccountID: "acct-1", DisplayName: "Alice"}
	return session.New(roomID, creator, 300_000, 2_000, session.Settings{AllowSpectators: true},
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestRedisRoundTrip(t *testing.T) {
	st, _ := newRedisStore(t)
	ctx := context.Background()

	got, err := st.Load(ctx, "NOPE")
	if err != nil || got != nil {
		t.Fatalf("missing room: got=%v err=%v, want nil,nil", got, err)
	}

	sess := sampleSession("AB12")
	sess.White.ConnRef = "conn-1"
	if err := st.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = st.Load(ctx, "AB12")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RoomID != "AB12" || got.White.DisplayName != "Alice" {
		t.Fatalf("loaded = %+v", got)
	}
	if got.White.ConnRef != "" {
		t.Fatal("connection refs must not survive serialization")
	}
	if got.Clocks.InitialMs != 300_000 {
		t.Fatalf("clocks = %+v", got.Clocks)
	}

	if err := st.Delete(ctx, "AB12"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := st.Load(ctx, "AB12"); got != nil {
		t.Fatal("room still present after delete")
	}
}

func TestRedisRoomIDsPrunesExpired(t *testing.T) {
	st, mr := newRedisStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, sampleSession("AAAA")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Save(ctx, sampleSession("BBBB")); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Hour)
	if err := st.Save(ctx, sampleSession("CCCC")); err != nil {
		t.Fatalf("save: %v", err)
	}

	ids, err := st.RoomIDs(ctx)
	if err != nil {
		t.Fatalf("room ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != "CCCC" {
		t.Fatalf("ids = %v, want [CCCC]", ids)
	}
}

func TestMemStoreIsolation(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()

	sess := sampleSession("MEM1")
	if err := st.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.Load(ctx, "MEM1")
	if err != nil || got == nil {
		t.Fatalf("load: got=%v err=%v", got, err)
	}
	got.White.DisplayName = "mutated"

	again, _ := st.Load(ctx, "MEM1")
	if again.White.DisplayName != "Alice" {
		t.Fatal("loaded sessions must be independent copies")
	}

	ids, _ := st.RoomIDs(ctx)
	if len(ids) != 1 || ids[0] != "MEM1" {
		t.Fatalf("ids = %v", ids)
	}
}
