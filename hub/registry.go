package hub

import (
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
)

// Registry hands out one running hub per document. Documents are
// coordinated in parallel; each hub stays single-threaded.
type Registry struct {
	log     *logrus.Logger
	metrics *Metrics
	hubs    *xsync.MapOf[string, *Hub]
}

// NewRegistry returns an empty registry sharing log and metrics across
// all documents.
func NewRegistry(log *logrus.Logger, metrics *Metrics) *Registry {
	return &Registry{
		log:     log,
		metrics: metrics,
		hubs:    xsync.NewMapOf[string, *Hub](),
	}
}

// Get returns the hub for docID, starting one if none is running yet.
func (r *Registry) Get(docID string) *Hub {
	h, _ := r.hubs.LoadOrCompute(docID, func() *Hub {
		h := New(docID, r.log, r.metrics)
		go h.Run()
		return h
	})
	return h
}
