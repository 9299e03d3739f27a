package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/daarion/roomsync/internal/boot"
	"github.com/daarion/roomsync/internal/config"
	"github.com/daarion/roomsync/internal/room"
	"github.com/fatih/color"
	"go.uber.org/fx"
)

func main() {
	roomFlag := flag.String("room", "", "room slug (overrides config)")
	configFlag := flag.String("config", "", "config file path (default ~/.daarion/config.toml)")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = room.ConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *roomFlag != "" {
		cfg.Room.Slug = *roomFlag
	}
	if err := room.ValidateSlug(cfg.Room.Slug); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	color.Cyan("roomsyncd starting")
	color.White("  room:      %s", cfg.Room.Slug)
	color.White("  bootstrap: %s", cfg.Bootstrap.URL)

	app := fx.New(
		boot.Module(boot.Params{Config: cfg}),
	)

	app.Run()
}
