package server

import (
	"fmt"
	"net"
	"net/http"

	"sitevault/backend/global"
)

func StartHTTPServer(host string, port int, handler http.Handler) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	go func() {
		if err := http.Serve(ln, handler); err != nil {
			global.Logger.Error().Err(err).Msg("http server stopped")
		}
	}()
	global.Logger.Info().Str("addr", addr).Msg("http server listening")
	return nil
}
