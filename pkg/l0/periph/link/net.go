package link

import (
	"io"
	"net"
	"net/url"

	"golang.org/x/net/websocket"
)

func init() {
	Register("tcp", openTCP)
	Register("ws", openWebsocket)
	Register("wss", openWebsocket)
}

func openTCP(u *url.URL) (io.ReadWriteCloser, error) {
	return net.Dial("tcp", u.Host)
}

func openWebsocket(u *url.URL) (io.ReadWriteCloser, error) {
	origin := u.Query().Get("origin")
	if origin == "" {
		origin = "http://localhost/"
	}
	conn, err := websocket.Dial(u.String(), "", origin)
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}

// WebsocketHandler serves a websocket endpoint and passes each binary
// connection to fn, which owns it until it returns.
func WebsocketHandler(fn func(io.ReadWriteCloser)) websocket.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		conn.PayloadType = websocket.BinaryFrame
		fn(conn)
	})
}
