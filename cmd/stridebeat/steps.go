package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stridebeat/internal/pedometer"
)

func newStepsCmd() *cobra.Command {
	steps := &cobra.Command{
		Use:   "steps",
		Short: "Feed step counts to a running daemon",
	}
	steps.AddCommand(newStepsSendCmd())
	return steps
}

func newStepsSendCmd() *cobra.Command {
	var (
		socket string
		total  int
		delta  int
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a cumulative count (--steps) or an increment (--delta) over IPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := stepMessageFromFlags(cmd.Flags().Changed("steps"), total, cmd.Flags().Changed("delta"), delta, time.Now())
			if err != nil {
				return err
			}
			if err := pedometer.SendSteps(ExpandPath(socket), msg); err != nil {
				return fmt.Errorf("send steps: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&socket, "socket", DefaultConfig().Pedometer.IPC.SocketPath, "Daemon IPC socket")
	f.IntVar(&total, "steps", 0, "Cumulative step count")
	f.IntVar(&delta, "delta", 0, "Steps taken since the last message")
	return cmd
}

// stepMessageFromFlags builds the IPC message. Exactly one of steps and delta
// must be set.
func stepMessageFromFlags(hasSteps bool, steps int, hasDelta bool, delta int, now time.Time) (pedometer.StepMessage, error) {
	switch {
	case hasSteps == hasDelta:
		return pedometer.StepMessage{}, errors.New("exactly one of --steps or --delta is required")
	case hasSteps:
		if steps < 0 {
			return pedometer.StepMessage{}, errors.New("--steps must be >= 0")
		}
		return pedometer.StepMessage{Steps: &steps, TimestampMs: now.UnixMilli()}, nil
	default:
		if delta <= 0 {
			return pedometer.StepMessage{}, errors.New("--delta must be > 0")
		}
		return pedometer.StepMessage{Delta: delta, TimestampMs: now.UnixMilli()}, nil
	}
}
