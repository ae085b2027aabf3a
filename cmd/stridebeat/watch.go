package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"stridebeat/internal/tui"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var (
		url     string
		logFile string
		retry   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a running daemon in a terminal dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The dashboard owns the terminal; logs only go to a file.
			var w io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(ExpandPath(logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				w = f
			}
			logger, err := root.logger(cmd, "info", w)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			p := tea.NewProgram(tui.New(url), tea.WithAltScreen(), tea.WithContext(ctx))
			go tui.Follow(ctx, url, retry, p.Send, logger)

			_, err = p.Run()
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&url, "url", "ws://127.0.0.1:3002/ws", "State WebSocket URL")
	f.StringVar(&logFile, "log-file", "", "Write logs to this file")
	f.DurationVar(&retry, "retry", 2*time.Second, "Reconnect delay")
	return cmd
}
