package controller

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/widdakay/fan-controller/pkg/pubsub"
	"github.com/widdakay/fan-controller/pkg/wsutil"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// local debug tap, any origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// registerDebugHandlers puts the live tap on the default mux; the debug
// listener in main serves it together with pprof.
func registerDebugHandlers() {
	http.HandleFunc("/ws/data", dataWebsocket)
}

// dataWebsocket streams the live feed to a local websocket client: the same
// frames the server receives on its feed stream.
func dataWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade", zap.Error(err))
		return
	}
	wsw := wsutil.WsWrap{Conn: conn}

	subscriber := pubsub.NewSubscriber(r.Context().Done(), wsw)
	dataPubSub.SubscribeTopic(subscriber, nil)
	defer dataPubSub.Evict(subscriber)

	go wsw.Ping(r.Context().Done())
	// reader
	for {
		if _, _, err = wsw.ReadMessage(); err != nil {
			break
		}
	}
}
