// Package hub hosts the server-side coordinator that linearizes
// concurrent edits of a shared document: it keeps the canonical
// document, the ordered change log and the open sessions, and rebases
// late commits before appending them.
package hub

import (
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cowrite/scribe/commons"
	"github.com/cowrite/scribe/document"
	"github.com/cowrite/scribe/ot"
)

// sendBuffer bounds a session's outbound queue. A session that stops
// draining it is dropped rather than allowed to stall the document.
const sendBuffer = 64

// Session is the hub-side handle for one connected client.
type Session struct {
	ID     uuid.UUID
	send   chan *commons.Message
	closed bool
}

// Recv returns the channel the hub delivers outbound messages on. It
// is closed when the hub drops the session.
func (s *Session) Recv() <-chan *commons.Message {
	return s.send
}

type command struct {
	sess *Session
	msg  *commons.Message
}

// Hub coordinates one document. All state is owned by the Run loop:
// commits are processed one at a time in arrival order, and the
// resulting update broadcast completes before the next command is
// consumed.
type Hub struct {
	docID    string
	log      *logrus.Logger
	metrics  *Metrics
	doc      *document.Document
	version  int
	changes  []*ot.Change
	sessions map[*Session]bool
	commands chan command
}

// New returns a hub for docID at version 1 with an empty document.
func New(docID string, log *logrus.Logger, metrics *Metrics) *Hub {
	return &Hub{
		docID:    docID,
		log:      log,
		metrics:  metrics,
		doc:      document.New(),
		version:  1,
		sessions: make(map[*Session]bool),
		commands: make(chan command, sendBuffer),
	}
}

// Run consumes commands until the command channel is closed. It is the
// only goroutine touching hub state.
func (h *Hub) Run() {
	for cmd := range h.commands {
		h.handle(cmd.sess, cmd.msg)
	}
}

// Connect allocates a session handle. The session joins the document
// once its open message is processed.
func (h *Hub) Connect() *Session {
	return &Session{ID: uuid.New(), send: make(chan *commons.Message, sendBuffer)}
}

// Deliver hands a message from a session to the coordinator.
func (h *Hub) Deliver(s *Session, msg *commons.Message) {
	h.commands <- command{sess: s, msg: msg}
}

func (h *Hub) handle(s *Session, msg *commons.Message) {
	switch msg.Type {
	case commons.OpenMessage:
		h.handleOpen(s, msg)
	case commons.CommitMessage:
		h.handleCommit(s, msg)
	case commons.CloseMessage:
		h.drop(s)
	default:
		h.log.WithFields(logrus.Fields{"doc": h.docID, "tag": msg.Type}).Warn("unexpected message")
	}
}

func (h *Hub) handleOpen(s *Session, msg *commons.Message) {
	if msg.Version < 1 || msg.Version > h.version {
		h.fail(s, &ot.InvalidVersionError{Client: msg.Version, Server: h.version})
		return
	}
	h.sessions[s] = true
	h.metrics.OpenSessions.Inc()

	// A client behind the hub receives the changes it missed so its
	// next commit can take the fast path.
	var catchup []*ot.Change
	for _, c := range h.changes[msg.Version-1:] {
		catchup = append(catchup, c.Clone())
	}
	h.send(s, commons.NewOpenDone(h.version, catchup))
	h.log.WithFields(logrus.Fields{"doc": h.docID, "session": s.ID, "version": h.version}).Info("session opened")
}

func (h *Hub) handleCommit(s *Session, msg *commons.Message) {
	if !h.sessions[s] {
		h.fail(s, errors.New("commit before open"))
		return
	}
	if msg.Change == nil {
		h.fail(s, &ot.MalformedOpError{Reason: "commit without a change"})
		return
	}
	v := msg.Version
	if v < 1 || v > h.version {
		h.metrics.RejectedCommits.Inc()
		h.fail(s, &ot.InvalidVersionError{Client: v, Server: h.version})
		return
	}

	incoming := msg.Change.Clone()
	var missed []*ot.Change
	if v < h.version {
		// Rebase path: carry the incoming change forward across every
		// commit the session has not seen, keeping the transformed
		// missed changes as its catch-up.
		missed = make([]*ot.Change, 0, h.version-v)
		for _, m := range h.changes[v-1:] {
			missed = append(missed, m.Clone())
		}
		for _, m := range missed {
			if _, _, err := ot.TransformChanges(m, incoming, &ot.TransformOptions{InPlace: true}); err != nil {
				h.metrics.RejectedCommits.Inc()
				h.fail(s, err)
				return
			}
		}
		h.metrics.RebasedCommits.Inc()
	}

	if incoming.IsNOP() {
		// The change was transformed away entirely (e.g. an update of
		// a concurrently deleted property). Nothing is appended; the
		// session still needs the catch-up.
		h.send(s, commons.NewCommitDoneRebase(h.version, incoming, missed))
		return
	}

	// Apply to a throwaway copy so a mid-batch failure leaves no
	// partial state behind.
	next := h.doc.Clone()
	if err := next.Apply(incoming); err != nil {
		h.metrics.RejectedCommits.Inc()
		h.fail(s, err)
		return
	}
	h.doc = next
	h.changes = append(h.changes, incoming)
	h.version++
	h.metrics.Commits.Inc()

	if missed != nil {
		h.send(s, commons.NewCommitDoneRebase(h.version, incoming.Clone(), missed))
	} else {
		h.send(s, commons.NewCommitDone(h.version))
	}
	h.broadcast(s, commons.NewUpdate(h.version, incoming.Clone()))
	h.log.WithFields(logrus.Fields{
		"doc":     h.docID,
		"session": s.ID,
		"version": h.version,
		"rebased": missed != nil,
		"ops":     len(incoming.Ops),
	}).Info("change committed")
}

// broadcast fans msg out to every open session except origin.
func (h *Hub) broadcast(origin *Session, msg *commons.Message) {
	for s := range h.sessions {
		if s != origin {
			h.send(s, msg)
			h.metrics.Broadcasts.Inc()
		}
	}
}

// send queues msg for s, dropping the session if its buffer is full.
func (h *Hub) send(s *Session, msg *commons.Message) {
	if s.closed {
		return
	}
	select {
	case s.send <- msg:
	default:
		h.log.WithFields(logrus.Fields{"doc": h.docID, "session": s.ID}).Warn("slow session dropped")
		h.drop(s)
	}
}

// fail sends a fatal error to the session and drops it.
func (h *Hub) fail(s *Session, err error) {
	h.log.WithFields(logrus.Fields{"doc": h.docID, "session": s.ID}).WithError(err).Error("session failed")
	h.send(s, commons.NewError(err.Error()))
	h.drop(s)
}

func (h *Hub) drop(s *Session) {
	if s.closed {
		return
	}
	s.closed = true
	if h.sessions[s] {
		delete(h.sessions, s)
		h.metrics.OpenSessions.Dec()
	}
	close(s.send)
	h.log.WithFields(logrus.Fields{"doc": h.docID, "session": s.ID}).Info("session closed")
}

// Snapshot returns a copy of the current document. It is safe only
// from the Run goroutine or before Run starts; the hub tests use it to
// inspect the document.
func (h *Hub) Snapshot() *document.Document {
	return h.doc.Clone()
}
