package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"transcribe-worker/hub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSink adapts a websocket connection to the hub's Sink. Gorilla allows only
// one concurrent writer per connection, hence the mutex: broadcast and
// heartbeat frames may race.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// addObserverRoute exposes the live job-event stream. Each connected client
// becomes a hub sink; the hub handles dead-connection pruning on write, the
// read loop here handles clients that close cleanly.
func addObserverRoute(r *gin.Engine, eventHub *hub.Hub, log zerolog.Logger) {
	r.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		registration := eventHub.AddClient(&wsSink{conn: conn})
		log.Debug().Str("client_id", registration.ID).Msg("observer connected")

		go func() {
			defer func() {
				registration.Remove()
				_ = conn.Close()
				log.Debug().Str("client_id", registration.ID).Msg("observer disconnected")
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}
