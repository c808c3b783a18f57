// Command searchctl administers a searchgate deployment in process: it opens the configured
// backends directly and dispatches god-token messages through the gateway bus.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/config"
	"searchgate.io/internal/gateway"
	"searchgate.io/internal/model"
)

const version = "0.1.0"

// loadConfig is replaced in tests.
var loadConfig = config.Load

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "searchctl",
		Short:         "Administer searchgate indices, tokens and consumers",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", os.Getenv("SEARCHGATE_CONFIG"), "Path to YAML config")

	root.AddCommand(
		newCreateIndexCommand(),
		newDeleteIndexCommand(),
		newConfigureIndexCommand(),
		newAddTokenCommand(),
		newDeleteTokenCommand(),
		newPrintTokensCommand(),
		newSignTokenCommand(),
		newPauseConsumersCommand(),
		newResumeConsumersCommand(),
		newQueueSizeCommand(),
		newCheckHealthCommand(),
	)
	return root
}

// session is one opened gateway plus the god token commands run as.
type session struct {
	cfg config.Config
	gw  *gateway.Gateway
	res *gateway.Resources
	god model.Token
}

func openSession(cmd *cobra.Command) (*session, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	backends, res, err := gateway.OpenBackends(cfg)
	if err != nil {
		return nil, err
	}
	gw, err := gateway.New(cfg, backends, gateway.WithVersion(version))
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	uuid := cfg.GodToken
	if uuid == "" {
		uuid = "searchctl"
	}
	return &session{cfg: cfg, gw: gw, res: res, god: model.NewGodToken(model.TokenUUID(uuid), "")}, nil
}

func (s *session) Close() {
	s.gw.Close()
	_ = s.res.Close()
}

func (s *session) scope(app, index string) bus.Scope {
	return bus.NewScope(model.NewRepositoryReference(model.AppUUID(app), model.IndexUUID(index)), s.god)
}

func (s *session) dispatch(ctx context.Context, msg bus.Message) (any, error) {
	return s.gw.Dispatch(ctx, msg)
}

// withSession opens a session for the duration of fn.
func withSession(fn func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd, s, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// printDispatched reports a command result. Queued commands print their envelope id.
func printDispatched(w io.Writer, what string, res any) error {
	if q, ok := res.(gateway.Queued); ok {
		_, err := fmt.Fprintf(w, "%s queued (%s)\n", what, q.EnvelopeID)
		return err
	}
	_, err := fmt.Fprintf(w, "%s\n", what)
	return err
}
