package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"dory/internal/app"
	"dory/internal/config"
	"dory/internal/logging"
	"dory/internal/tui"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	// console output would draw over the UI
	if cfg.LogFile == "" {
		cfg.LogFile = "logs/dory-chat.log"
	}
	logger := logging.InitFile(cfg.LogLevel, cfg.LogFile)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup:", err)
		os.Exit(1)
	}
	defer a.Close()

	svc, err := a.NewChatService()
	if err != nil {
		fmt.Fprintln(os.Stderr, "chat model:", err)
		os.Exit(1)
	}

	p := tea.NewProgram(tui.New(svc, cfg.Chat.Timeout+cfg.Retrieval.Timeout), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
