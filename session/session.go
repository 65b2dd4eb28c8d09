// Package session implements the client half of the commit protocol: a
// state machine owning the local mirror of the document, the pending
// local change, and the updates queued while a commit is in flight.
package session

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cowrite/scribe/commons"
	"github.com/cowrite/scribe/document"
	"github.com/cowrite/scribe/ot"
)

var (
	ErrNotSynced     = errors.New("session: not synced")
	ErrNotOpening    = errors.New("session: unexpected openDone")
	ErrNotCommitting = errors.New("session: unexpected commitDone")
	ErrClosed        = errors.New("session: closed")
)

// Status is the session lifecycle state.
type Status int

const (
	StatusClosed Status = iota
	StatusOpening
	StatusSynced
	StatusCommitting
)

func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusOpening:
		return "opening"
	case StatusSynced:
		return "synced"
	case StatusCommitting:
		return "committing"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Session mirrors one document for a client. It is not safe for
// concurrent use; callers feed it messages from a single loop.
type Session struct {
	docID   string
	log     *logrus.Logger
	status  Status
	version int
	doc     *document.Document
	pending *ot.Change
	queued  []*commons.Message
}

// New returns a closed session for docID with an empty mirror.
func New(docID string, log *logrus.Logger) *Session {
	return &Session{docID: docID, log: log, version: 1, doc: document.New()}
}

func (s *Session) DocID() string  { return s.docID }
func (s *Session) Status() Status { return s.status }

// Version is the last hub version this session has caught up to.
func (s *Session) Version() int { return s.version }

// Document returns a copy of the local mirror.
func (s *Session) Document() *document.Document { return s.doc.Clone() }

// Get reads a value from the local mirror.
func (s *Session) Get(path ot.Path) (any, bool) { return s.doc.Get(path) }

// Open produces the open message and moves to opening. Reopening a
// closed session keeps its last known version so the hub only sends
// what was missed.
func (s *Session) Open() (*commons.Message, error) {
	if s.status != StatusClosed {
		return nil, fmt.Errorf("session: open while %s", s.status)
	}
	s.status = StatusOpening
	return commons.NewOpen(s.docID, s.version), nil
}

// Commit applies a local change to the mirror and produces the commit
// message for it. Only one commit may be in flight at a time.
func (s *Session) Commit(c *ot.Change) (*commons.Message, error) {
	if s.status != StatusSynced {
		return nil, fmt.Errorf("%w: %s", ErrNotSynced, s.status)
	}
	c = c.Clone()
	next := s.doc.Clone()
	if err := next.Apply(c); err != nil {
		return nil, err
	}
	s.doc = next
	s.pending = c
	s.status = StatusCommitting
	return commons.NewCommit(c.Clone(), s.version), nil
}

// Handle feeds one inbound message through the state machine. A
// returned error with ErrClosed wrapped means the session is gone.
func (s *Session) Handle(msg *commons.Message) error {
	switch msg.Type {
	case commons.OpenDoneMessage:
		return s.handleOpenDone(msg)
	case commons.CommitDoneMessage:
		return s.handleCommitDone(msg)
	case commons.UpdateMessage:
		return s.handleUpdate(msg)
	case commons.ErrorMessage:
		s.status = StatusClosed
		return fmt.Errorf("%w: %s", ErrClosed, msg.Reason)
	default:
		s.log.WithField("tag", msg.Type).Warn("unexpected message")
		return nil
	}
}

func (s *Session) handleOpenDone(msg *commons.Message) error {
	if s.status != StatusOpening {
		return fmt.Errorf("%w while %s", ErrNotOpening, s.status)
	}
	if err := s.applyRemote(msg.Catchup...); err != nil {
		return err
	}
	s.version = msg.Version
	s.status = StatusSynced
	s.log.WithFields(logrus.Fields{"doc": s.docID, "version": s.version}).Info("session synced")
	return nil
}

func (s *Session) handleCommitDone(msg *commons.Message) error {
	if s.status != StatusCommitting {
		return fmt.Errorf("%w while %s", ErrNotCommitting, s.status)
	}
	if msg.Rebased != nil {
		// The mirror already holds the pending change; the catch-up
		// changes are the missed commits transformed past it, so they
		// apply directly on top.
		if err := s.applyRemote(msg.Catchup...); err != nil {
			return err
		}
		s.log.WithFields(logrus.Fields{
			"doc":     s.docID,
			"version": msg.Version,
			"missed":  len(msg.Catchup),
		}).Info("commit rebased")
	}
	s.version = msg.Version
	s.pending = nil
	s.status = StatusSynced

	// Updates that raced the commit: anything at or below the new
	// version is already covered by the catch-up.
	queued := s.queued
	s.queued = nil
	for _, u := range queued {
		if u.Version <= s.version {
			continue
		}
		if err := s.handleUpdate(u); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handleUpdate(msg *commons.Message) error {
	switch s.status {
	case StatusCommitting:
		s.queued = append(s.queued, msg)
		return nil
	case StatusSynced:
		if err := s.applyRemote(msg.Change); err != nil {
			return err
		}
		s.version = msg.Version
		return nil
	default:
		return fmt.Errorf("session: update while %s", s.status)
	}
}

// applyRemote applies hub-observable changes to the mirror, swapping
// in the new document only if every op applied.
func (s *Session) applyRemote(changes ...*ot.Change) error {
	if len(changes) == 0 {
		return nil
	}
	next := s.doc.Clone()
	for _, c := range changes {
		if c == nil {
			continue
		}
		if err := next.Apply(c); err != nil {
			return err
		}
	}
	s.doc = next
	return nil
}

// Close produces the close message and ends the session.
func (s *Session) Close() *commons.Message {
	s.status = StatusClosed
	s.pending = nil
	s.queued = nil
	return commons.NewClose(s.docID)
}
