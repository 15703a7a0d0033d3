package main

import (
	"os"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/cli"
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/config"
	"github.com/labstack/gommon/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	if err := cli.NewRootCmd(&cli.Dependencies{Config: cfg}).Execute(); err != nil {
		os.Exit(1)
	}
}
