package api

import (
	"net/http"

	"github.com/witwicki/streaming-xtts/pkg/ws"
)

// streamHandler upgrades the request and hands the connection to the session
// manager, which owns it from here. The handler blocks for the session's
// lifetime, like any other long request.
func (api *API) streamHandler(w http.ResponseWriter, r *http.Request) {
	logger := api.logger.With("remote", r.RemoteAddr)

	logger.Info("received streaming connection request")

	wsConn, err := ws.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade to websocket connection", "err", err)

		return
	}

	api.manager.HandleConn(r.Context(), wsConn)

	logger.Info("streaming connection finished")
}
