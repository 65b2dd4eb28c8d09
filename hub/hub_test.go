package hub

import (
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowrite/scribe/commons"
	"github.com/cowrite/scribe/ot"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New("doc-1", logger, NewMetrics(prometheus.NewRegistry()))
}

// recv pops the next queued message for s, failing if none is there.
func recv(t *testing.T, s *Session) *commons.Message {
	t.Helper()
	select {
	case msg, ok := <-s.Recv():
		require.True(t, ok, "session channel closed")
		return msg
	default:
		t.Fatal("no message queued")
		return nil
	}
}

func noMsg(t *testing.T, s *Session) {
	t.Helper()
	select {
	case msg := <-s.Recv():
		t.Fatalf("unexpected message %q", msg.Type)
	default:
	}
}

func mustOp(op *ot.ObjectOp, err error) *ot.ObjectOp {
	if err != nil {
		panic(err)
	}
	return op
}

func open(t *testing.T, h *Hub, version int) *Session {
	t.Helper()
	s := h.Connect()
	h.handle(s, commons.NewOpen(h.docID, version))
	done := recv(t, s)
	require.Equal(t, commons.OpenDoneMessage, done.Type)
	require.Equal(t, h.version, done.Version)
	return s
}

// TestFastPathCommit: a lone session commits against the hub's version.
func TestFastPathCommit(t *testing.T) {
	h := newTestHub(t)
	a := open(t, h, 1)

	change := ot.NewChange(mustOp(ot.Create(ot.Path{"title"}, "Hi")))
	h.handle(a, commons.NewCommit(change, 1))

	done := recv(t, a)
	assert.Equal(t, commons.CommitDoneMessage, done.Type)
	assert.Equal(t, 2, done.Version)
	assert.Nil(t, done.Rebased)

	assert.Equal(t, 2, h.version)
	assert.Len(t, h.changes, 1)

	title, _ := h.Snapshot().Get(ot.Path{"title"})
	assert.Equal(t, "Hi", title)

	// A is the only session, so nothing else is queued.
	noMsg(t, a)
}

// TestBroadcast: a commit reaches every other open session.
func TestBroadcast(t *testing.T) {
	h := newTestHub(t)
	a := open(t, h, 1)
	h.handle(a, commons.NewCommit(ot.NewChange(mustOp(ot.Create(ot.Path{"title"}, "Hi"))), 1))
	recv(t, a)

	b := open(t, h, 2)

	h.handle(a, commons.NewCommit(ot.NewChange(mustOp(ot.Set(ot.Path{"title"}, "Hello", "Hi"))), 2))
	done := recv(t, a)
	assert.Equal(t, commons.CommitDoneMessage, done.Type)
	assert.Equal(t, 3, done.Version)

	update := recv(t, b)
	require.Equal(t, commons.UpdateMessage, update.Type)
	assert.Equal(t, 3, update.Version)
	require.Len(t, update.Change.Ops, 1)
	assert.Equal(t, ot.OpSet, update.Change.Ops[0].Type)

	title, _ := h.Snapshot().Get(ot.Path{"title"})
	assert.Equal(t, "Hello", title)
}

// TestOpenCatchup: opening behind the hub returns the missed changes.
func TestOpenCatchup(t *testing.T) {
	h := newTestHub(t)
	a := open(t, h, 1)
	h.handle(a, commons.NewCommit(ot.NewChange(mustOp(ot.Create(ot.Path{"title"}, "Hi"))), 1))
	recv(t, a)

	b := h.Connect()
	h.handle(b, commons.NewOpen(h.docID, 1))
	done := recv(t, b)
	require.Equal(t, commons.OpenDoneMessage, done.Type)
	assert.Equal(t, 2, done.Version)
	require.Len(t, done.Catchup, 1)
	assert.Equal(t, ot.OpCreate, done.Catchup[0].Ops[0].Type)
}

// TestRebaseConcurrentUpdates replays the concurrent text edit race:
// an insert at 5 rebases across a concurrent insert at 0.
func TestRebaseConcurrentUpdates(t *testing.T) {
	h := newTestHub(t)
	a := open(t, h, 1)
	h.handle(a, commons.NewCommit(ot.NewChange(mustOp(ot.Create(ot.Path{"title"}, "Hello"))), 1))
	recv(t, a)

	b := open(t, h, 2)

	// B's commit lands first and advances the hub to 3.
	h.handle(b, commons.NewCommit(ot.NewChange(mustOp(ot.Update(ot.Path{"title"}, ot.NewTextInsert(0, ">")))), 2))
	recv(t, b)
	recv(t, a) // update(3) to A

	// A's commit was produced against version 2 and must rebase.
	h.handle(a, commons.NewCommit(ot.NewChange(mustOp(ot.Update(ot.Path{"title"}, ot.NewTextInsert(5, "!")))), 2))

	done := recv(t, a)
	require.Equal(t, commons.CommitDoneMessage, done.Type)
	assert.Equal(t, 4, done.Version)
	require.NotNil(t, done.Rebased)
	rebased := done.Rebased.Ops[0].Diff.(*ot.TextOp)
	assert.Equal(t, 6, rebased.Pos)
	require.Len(t, done.Catchup, 1)
	catchup := done.Catchup[0].Ops[0].Diff.(*ot.TextOp)
	assert.Equal(t, 0, catchup.Pos)

	update := recv(t, b)
	require.Equal(t, commons.UpdateMessage, update.Type)
	assert.Equal(t, 4, update.Version)

	title, _ := h.Snapshot().Get(ot.Path{"title"})
	assert.Equal(t, ">Hello!", title)
}

// TestRebaseDeleteVsUpdate: an update of a concurrently deleted
// property collapses; nothing is appended to the log.
func TestRebaseDeleteVsUpdate(t *testing.T) {
	h := newTestHub(t)
	a := open(t, h, 1)
	h.handle(a, commons.NewCommit(ot.NewChange(mustOp(ot.Create(ot.Path{"body"}, "abc"))), 1))
	recv(t, a)

	b := open(t, h, 2)

	h.handle(a, commons.NewCommit(ot.NewChange(mustOp(ot.Delete(ot.Path{"body"}, "abc"))), 2))
	recv(t, a)
	recv(t, b) // update(3) to B

	h.handle(b, commons.NewCommit(ot.NewChange(mustOp(ot.Update(ot.Path{"body"}, ot.NewTextInsert(3, "d")))), 2))

	done := recv(t, b)
	require.Equal(t, commons.CommitDoneMessage, done.Type)
	assert.Equal(t, 3, done.Version, "a collapsed commit does not advance the version")
	require.NotNil(t, done.Rebased)
	assert.True(t, done.Rebased.IsNOP())
	require.Len(t, done.Catchup, 1)
	// The catch-up delete records the post-update value so it stays
	// invertible against B's local state.
	assert.Equal(t, "abcd", done.Catchup[0].Ops[0].Val)

	assert.Len(t, h.changes, 2)
	noMsg(t, a)

	_, ok := h.Snapshot().Get(ot.Path{"body"})
	assert.False(t, ok)
}

// TestSetVsSet: the later set wins and records the value it replaced.
func TestSetVsSet(t *testing.T) {
	h := newTestHub(t)
	a := open(t, h, 1)
	h.handle(a, commons.NewCommit(ot.NewChange(mustOp(ot.Create(ot.Path{"p"}, "v0"))), 1))
	recv(t, a)

	b := open(t, h, 2)

	h.handle(a, commons.NewCommit(ot.NewChange(mustOp(ot.Set(ot.Path{"p"}, "v1", "v0"))), 2))
	recv(t, a)
	recv(t, b)

	h.handle(b, commons.NewCommit(ot.NewChange(mustOp(ot.Set(ot.Path{"p"}, "v2", "v0"))), 2))

	done := recv(t, b)
	require.Equal(t, commons.CommitDoneMessage, done.Type)
	assert.Equal(t, 4, done.Version)
	assert.Equal(t, "v1", done.Rebased.Ops[0].Original)
	assert.True(t, done.Catchup[0].Ops[0].IsNOP(), "the overwritten set collapses in the catch-up")

	p, _ := h.Snapshot().Get(ot.Path{"p"})
	assert.Equal(t, "v2", p)
}

// TestInvalidVersion: committing ahead of the hub is fatal.
func TestInvalidVersion(t *testing.T) {
	h := newTestHub(t)
	a := open(t, h, 1)

	h.handle(a, commons.NewCommit(ot.NewChange(mustOp(ot.Create(ot.Path{"x"}, "1"))), 7))

	errMsg := recv(t, a)
	assert.Equal(t, commons.ErrorMessage, errMsg.Type)

	_, ok := <-a.Recv()
	assert.False(t, ok, "session channel should be closed")
	assert.Empty(t, h.sessions)
}

// TestOpenAheadOfHub rejects a client claiming a future version.
func TestOpenAheadOfHub(t *testing.T) {
	h := newTestHub(t)
	s := h.Connect()
	h.handle(s, commons.NewOpen(h.docID, 5))

	errMsg := recv(t, s)
	assert.Equal(t, commons.ErrorMessage, errMsg.Type)
	assert.Empty(t, h.sessions)
}

// TestCommitBeforeOpen is rejected.
func TestCommitBeforeOpen(t *testing.T) {
	h := newTestHub(t)
	s := h.Connect()
	h.handle(s, commons.NewCommit(ot.NewChange(mustOp(ot.Create(ot.Path{"x"}, "1"))), 1))

	errMsg := recv(t, s)
	assert.Equal(t, commons.ErrorMessage, errMsg.Type)
}

// TestFailedApplyRollsBack: a commit whose change cannot apply leaves
// the hub untouched.
func TestFailedApplyRollsBack(t *testing.T) {
	h := newTestHub(t)
	a := open(t, h, 1)

	// Delete of a property that never existed.
	h.handle(a, commons.NewCommit(ot.NewChange(mustOp(ot.Delete(ot.Path{"ghost"}, "x"))), 1))

	errMsg := recv(t, a)
	assert.Equal(t, commons.ErrorMessage, errMsg.Type)
	assert.Equal(t, 1, h.version)
	assert.Empty(t, h.changes)
}

// TestCloseRemovesSession: a close drops the session and stops
// broadcasts to it.
func TestCloseRemovesSession(t *testing.T) {
	h := newTestHub(t)
	a := open(t, h, 1)
	b := open(t, h, 1)

	h.handle(b, commons.NewClose(h.docID))
	_, ok := <-b.Recv()
	assert.False(t, ok)

	h.handle(a, commons.NewCommit(ot.NewChange(mustOp(ot.Create(ot.Path{"x"}, "1"))), 1))
	recv(t, a)
	assert.Len(t, h.sessions, 1)
}

// TestActorDelivery drives the hub through its Run loop instead of
// calling handlers directly.
func TestActorDelivery(t *testing.T) {
	h := newTestHub(t)
	go h.Run()
	defer close(h.commands)

	s := h.Connect()
	h.Deliver(s, commons.NewOpen(h.docID, 1))

	done := <-s.Recv()
	require.Equal(t, commons.OpenDoneMessage, done.Type)
	assert.Equal(t, 1, done.Version)

	h.Deliver(s, commons.NewCommit(ot.NewChange(mustOp(ot.Create(ot.Path{"x"}, "1"))), 1))
	ack := <-s.Recv()
	assert.Equal(t, commons.CommitDoneMessage, ack.Type)
	assert.Equal(t, 2, ack.Version)
}
