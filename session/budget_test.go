package session

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis hook that counts Redis commands and pipeline
// round-trips.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64 { return h.commands.Load() }

// newCountedStore returns a store whose scripts are already cached in Redis,
// so every measured script call is a single EVALSHA.
func newCountedStore(t *testing.T) (*Store, *cmdCounter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	counter := &cmdCounter{}
	rdb.AddHook(counter)

	store := NewStore(rdb, &fakeTokens{}, Options{
		Prefix:        "ag",
		TTL:           time.Hour,
		RotateRefresh: true,
		RevokeOnReuse: true,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	warm, err := store.Create(ctx, "warmup")
	if err != nil {
		t.Fatalf("warmup create: %v", err)
	}
	if _, err := store.RotateRefresh(ctx, warm.RefreshToken); err != nil {
		t.Fatalf("warmup rotate: %v", err)
	}
	if _, err := store.Revoke(ctx, "warmup"); err != nil {
		t.Fatalf("warmup revoke: %v", err)
	}

	counter.Reset()
	return store, counter
}

func TestCreateRedisBudget(t *testing.T) {
	store, counter := newCountedStore(t)

	if _, err := store.Create(context.Background(), "uid-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if cmds := counter.Commands(); cmds != 1 {
		t.Fatalf("Create used %d Redis commands, want 1", cmds)
	}
}

func TestIsLiveRedisBudget(t *testing.T) {
	store, counter := newCountedStore(t)
	ctx := context.Background()

	issued, err := store.Create(ctx, "uid-2")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	counter.Reset()

	live, err := store.IsLive(ctx, "uid-2", issued.Metadata.SessionID)
	if err != nil || !live {
		t.Fatalf("IsLive = %v, %v", live, err)
	}
	if cmds := counter.Commands(); cmds != 1 {
		t.Fatalf("IsLive used %d Redis commands, want 1", cmds)
	}
}

func TestTouchRedisBudget(t *testing.T) {
	store, counter := newCountedStore(t)
	ctx := context.Background()

	issued, err := store.Create(ctx, "uid-3")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	counter.Reset()

	if _, err := store.Touch(ctx, issued.Metadata.SessionID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if cmds := counter.Commands(); cmds != 1 {
		t.Fatalf("Touch used %d Redis commands, want 1", cmds)
	}
}

func TestRotateRefreshRedisBudget(t *testing.T) {
	store, counter := newCountedStore(t)
	ctx := context.Background()

	issued, err := store.Create(ctx, "uid-4")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	counter.Reset()

	if _, err := store.RotateRefresh(ctx, issued.RefreshToken); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if cmds := counter.Commands(); cmds != 1 {
		t.Fatalf("RotateRefresh used %d Redis commands, want 1", cmds)
	}
}

func TestRevokeRedisBudget(t *testing.T) {
	store, counter := newCountedStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "uid-5"); err != nil {
		t.Fatalf("create: %v", err)
	}
	counter.Reset()

	if _, err := store.Revoke(ctx, "uid-5"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if cmds := counter.Commands(); cmds != 1 {
		t.Fatalf("Revoke used %d Redis commands, want 1", cmds)
	}
}
