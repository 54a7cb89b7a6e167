package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"sitevault/backend/global"
	"sitevault/backend/initialize"
	"sitevault/backend/server"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to config file")
	flag.Parse()

	app, err := initialize.Build(*configPath)
	if err != nil {
		global.Logger.Fatal().Err(err).Msg("startup failed")
	}

	if err := server.StartHTTPServer(app.Cfg.Host, app.Cfg.Port, app.Router); err != nil {
		global.Logger.Fatal().Err(err).Msg("http server failed")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	global.Logger.Info().Msg("shutting down")
}
