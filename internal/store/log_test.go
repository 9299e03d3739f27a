package store

import (
	"strings"
	"testing"
)

func TestSeedReplacesList(t *testing.T) {
	l := NewLog()
	l.AppendRemote(Message{ID: "old", Body: "stale"})

	l.Seed([]Message{
		{ID: "m1", Body: "one", Timestamp: 1000},
		{ID: "m2", Body: "two", Timestamp: 2000},
	})

	msgs := l.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("order = %s,%s, want m1,m2", msgs[0].ID, msgs[1].ID)
	}
}

func TestAppendRemoteDedup(t *testing.T) {
	l := NewLog()
	msg := Message{ID: "evt_1", Body: "hello", Timestamp: 1000}

	if !l.AppendRemote(msg) {
		t.Fatal("first append rejected")
	}
	if l.AppendRemote(msg) {
		t.Error("duplicate id accepted")
	}
	if l.Len() != 1 {
		t.Errorf("got %d messages, want 1", l.Len())
	}
}

func TestAppendRemoteDedupAgainstSeed(t *testing.T) {
	l := NewLog()
	l.Seed([]Message{{ID: "evt_1", Body: "from history"}})

	if l.AppendRemote(Message{ID: "evt_1", Body: "redelivered"}) {
		t.Error("sync redelivery of a seeded event accepted")
	}
	if l.Len() != 1 {
		t.Errorf("got %d messages, want 1", l.Len())
	}
}

func TestSendLocalOptimisticEcho(t *testing.T) {
	l := NewLog()
	h := l.SendLocal("hi", "@me:hs", "me", 1000)
	if h == nil {
		t.Fatal("nil handle")
	}

	msgs := l.Snapshot()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (optimistic echo)", len(msgs))
	}
	if !strings.HasPrefix(msgs[0].ID, "temp_") {
		t.Errorf("id = %q, want temp_ prefix", msgs[0].ID)
	}
	if msgs[0].Confirmed {
		t.Error("optimistic message marked confirmed")
	}
	if msgs[0].Origin != OriginLocal {
		t.Errorf("origin = %q, want local", msgs[0].Origin)
	}
}

func TestConfirmSwapsIdentityInPlace(t *testing.T) {
	l := NewLog()
	h := l.SendLocal("hi", "@me:hs", "me", 1000)
	l.Confirm(h, "evt_1")

	msgs := l.Snapshot()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want exactly 1 after confirm", len(msgs))
	}
	if msgs[0].ID != "evt_1" {
		t.Errorf("id = %q, want evt_1", msgs[0].ID)
	}
	if msgs[0].Body != "hi" {
		t.Errorf("body = %q, want hi", msgs[0].Body)
	}
	if !msgs[0].Confirmed {
		t.Error("confirmed = false, want true")
	}

	// The server id now guards against the sync echo of the same event.
	if l.AppendRemote(Message{ID: "evt_1", Body: "hi"}) {
		t.Error("sync echo of confirmed id accepted as a second entry")
	}
}

func TestConfirmAfterSyncEchoDropsTemp(t *testing.T) {
	l := NewLog()
	h := l.SendLocal("hi", "@me:hs", "me", 1000)

	// Sync loop delivers the server copy before the send response arrives.
	if !l.AppendRemote(Message{ID: "evt_1", SenderID: "@me:hs", Body: "hi", Timestamp: 1001}) {
		t.Fatal("echo append rejected")
	}

	l.Confirm(h, "evt_1")

	msgs := l.Snapshot()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (temp dropped, echo kept)", len(msgs))
	}
	if msgs[0].ID != "evt_1" {
		t.Errorf("id = %q, want evt_1", msgs[0].ID)
	}
}

func TestRollbackRemovesEntry(t *testing.T) {
	l := NewLog()
	l.AppendRemote(Message{ID: "evt_0", Body: "earlier"})
	h := l.SendLocal("hi", "@me:hs", "me", 1000)

	l.Rollback(h)

	for _, m := range l.Snapshot() {
		if strings.HasPrefix(m.ID, "temp_") {
			t.Errorf("temp entry %q survived rollback", m.ID)
		}
	}
	if l.Len() != 1 {
		t.Errorf("got %d messages, want 1", l.Len())
	}

	// Handle is dead; a second rollback or a late confirm must be a no-op.
	l.Rollback(h)
	l.Confirm(h, "evt_9")
	if l.Len() != 1 {
		t.Errorf("got %d messages after dead-handle ops, want 1", l.Len())
	}
}

func TestConfirmTargetsHandleNotBody(t *testing.T) {
	l := NewLog()
	h1 := l.SendLocal("same body", "@me:hs", "me", 1000)
	h2 := l.SendLocal("same body", "@me:hs", "me", 1001)

	l.Confirm(h2, "evt_2")
	l.Confirm(h1, "evt_1")

	msgs := l.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// Order is insertion order; ids must map to the right handles.
	if msgs[0].ID != "evt_1" || msgs[1].ID != "evt_2" {
		t.Errorf("ids = %s,%s, want evt_1,evt_2", msgs[0].ID, msgs[1].ID)
	}
}

func TestAppendOnlyTailOrder(t *testing.T) {
	l := NewLog()
	l.Seed([]Message{{ID: "m1", Timestamp: 1000}, {ID: "m2", Timestamp: 2000}})
	h := l.SendLocal("hi", "@me:hs", "me", 3000)
	l.AppendRemote(Message{ID: "m3", Timestamp: 2500})
	l.Confirm(h, "evt_1")

	got := make([]string, 0, 4)
	for _, m := range l.Snapshot() {
		got = append(got, m.ID)
	}
	want := []string{"m1", "m2", "evt_1", "m3"}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %s, want %s (no reordering after seed)", i, got[i], want[i])
		}
	}
}
