package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/consumer"
)

func newPauseConsumersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause-consumers",
		Short: "Broadcast busy to consumers of the given queue types",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, s *session, _ []string) error {
			types, _ := cmd.Flags().GetStringSlice("type")
			if _, err := s.dispatch(cmd.Context(), &bus.PauseConsumers{Scope: s.scope("", ""), Types: types}); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "consumers paused: %s\n", describeTypes(types))
			return err
		}),
	}
	cmd.Flags().StringSlice("type", nil, "Queue types, empty means all")
	return cmd
}

func newResumeConsumersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume-consumers",
		Short: "Broadcast not busy to consumers of the given queue types",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, s *session, _ []string) error {
			types, _ := cmd.Flags().GetStringSlice("type")
			if _, err := s.dispatch(cmd.Context(), &bus.ResumeConsumers{Scope: s.scope("", ""), Types: types}); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "consumers resumed: %s\n", describeTypes(types))
			return err
		}),
	}
	cmd.Flags().StringSlice("type", nil, "Queue types, empty means all")
	return cmd
}

func describeTypes(types []string) string {
	if len(types) == 0 {
		return "all"
	}
	return strings.Join(types, ",")
}

func newQueueSizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "queue-size TYPE",
		Short: "Print the depth of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			t, ok := consumer.ParseType(args[0])
			if !ok {
				return fmt.Errorf("unknown queue type %q", args[0])
			}
			size, known, err := s.gw.Consumers().QueueSize(cmd.Context(), t)
			if err != nil {
				return err
			}
			if !known {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: unknown\n", t)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", t, size)
			return err
		}),
	}
}

func newCheckHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-health",
		Short: "Print the gateway health report",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, s *session, _ []string) error {
			report, err := s.dispatch(cmd.Context(), &bus.CheckHealth{Scope: s.scope("", "")})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		}),
	}
}
