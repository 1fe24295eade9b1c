package main

import (
	"flag"

	"github.com/apex/log"
	"github.com/joho/godotenv"

	"pricemap/backend/server"
	"pricemap/common"
)

var (
	logLevel  = flag.String("log_level", "info", "Log level: debug, info, warn or error.")
	logFormat = flag.String("log_format", "text", "Log format: text or json.")
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warnf("No .env file loaded: %v", err)
	}
	flag.Parse()
	if err := common.SetupLogging(*logLevel, *logFormat); err != nil {
		log.Fatalf("Bad logging flags: %v", err)
	}
	log.Info("Hello!")
	server.StartService()
	log.Info("Bye!")
}
