package hub

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/cowrite/scribe/commons"
)

// Upgrader instance to upgrade all HTTP connections to a WebSocket.
var upgrader = websocket.Upgrader{}

// Handler returns the websocket endpoint attaching each connection to
// its document's hub. The route must carry a {doc} variable.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		docID := mux.Vars(req)["doc"]
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			r.log.WithError(err).Error("error upgrading connection to websocket")
			return
		}

		h := r.Get(docID)
		s := h.Connect()
		r.log.WithFields(logrus.Fields{"doc": docID, "session": s.ID}).Info("connection established")

		// Write pump: drains the session's outbound queue until the
		// hub closes it.
		go func() {
			for msg := range s.Recv() {
				if err := conn.WriteJSON(msg); err != nil {
					r.log.WithFields(logrus.Fields{"session": s.ID}).WithError(err).Warn("error sending message")
					break
				}
			}
			conn.Close()
		}()

		for {
			var msg commons.Message
			if err := conn.ReadJSON(&msg); err != nil {
				break
			}
			h.Deliver(s, &msg)
		}
		h.Deliver(s, commons.NewClose(docID))
	}
}
