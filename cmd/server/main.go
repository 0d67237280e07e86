package main

import (
	"github.com/polisight/backend/internal/server"
	"github.com/polisight/backend/internal/util"
	"github.com/polisight/backend/pkg/logger"
	"github.com/polisight/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Format: util.GetEnv("LOG_FORMAT"),
	})
	logger.Init(consoleLogger)

	server.Init()
}
