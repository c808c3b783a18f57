package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/ids"
	"searchgate.io/internal/model"
	"searchgate.io/internal/token"
)

func addTokenFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("index", nil, "Allowed indices, empty allows all")
	cmd.Flags().StringSlice("endpoint", nil, "Allowed endpoints as VERB~~path")
	cmd.Flags().StringSlice("plugin", nil, "Enabled plugins")
	cmd.Flags().Int("ttl", model.DefaultTokenTTL, "Cache ttl in seconds")
	cmd.Flags().StringSlice("referrer", nil, "Allowed http referrers")
	cmd.Flags().StringSlice("requests-limit", nil, "Request limits such as 100/i or 10K/d")
	cmd.Flags().Int("seconds-valid", 0, "Seconds after creation the token stays valid, 0 disables")
}

func tokenFromFlags(cmd *cobra.Command, app, uuid string) model.Token {
	t := model.NewToken(model.TokenUUID(uuid), model.AppUUID(app))
	indices, _ := cmd.Flags().GetStringSlice("index")
	for _, idx := range indices {
		t.Indices = append(t.Indices, model.IndexUUID(idx))
	}
	t.Endpoints, _ = cmd.Flags().GetStringSlice("endpoint")
	t.Plugins, _ = cmd.Flags().GetStringSlice("plugin")
	t.TTL, _ = cmd.Flags().GetInt("ttl")
	if refs, _ := cmd.Flags().GetStringSlice("referrer"); len(refs) > 0 {
		t.Metadata["http_referrers"] = refs
	}
	if limits, _ := cmd.Flags().GetStringSlice("requests-limit"); len(limits) > 0 {
		t.Metadata["requests_limit"] = limits
	}
	if n, _ := cmd.Flags().GetInt("seconds-valid"); n > 0 {
		t.Metadata["seconds_valid"] = n
	}
	return t
}

func newAddTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-token APP [UUID]",
		Short: "Store a token, generating its uuid when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			uuid := ids.NewTokenUUID()
			if len(args) == 2 {
				uuid = args[1]
			}
			t := tokenFromFlags(cmd, args[0], uuid)
			res, err := s.dispatch(cmd.Context(), &bus.AddToken{Scope: s.scope(args[0], ""), NewToken: t})
			if err != nil {
				return err
			}
			return printDispatched(cmd.OutOrStdout(), "token "+uuid+" added", res)
		}),
	}
	addTokenFlags(cmd)
	return cmd
}

func newDeleteTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-token APP UUID",
		Short: "Delete a token",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			res, err := s.dispatch(cmd.Context(), &bus.DeleteToken{
				Scope:     s.scope(args[0], ""),
				TokenUUID: model.TokenUUID(args[1]),
			})
			if err != nil {
				return err
			}
			return printDispatched(cmd.OutOrStdout(), "token "+args[1]+" deleted", res)
		}),
	}
}

func newPrintTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "print-tokens APP",
		Short: "Print the stored tokens of an app",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			res, err := s.dispatch(cmd.Context(), &bus.GetTokens{Scope: s.scope(args[0], "")})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
}

// sign-token only needs the signing secret, so it does not open the backends.
func newSignTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign-token APP [UUID]",
		Short: "Issue a signed token that needs no storage lookup",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			if cfg.Tokens.SigningSecret == "" {
				return errors.New("tokens.signing_secret is not configured")
			}
			var uuid string
			if len(args) == 2 {
				uuid = args[1]
			}
			expires, _ := cmd.Flags().GetDuration("expires")
			signed, err := token.Sign([]byte(cfg.Tokens.SigningSecret), tokenFromFlags(cmd, args[0], uuid), expires)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}
	addTokenFlags(cmd)
	cmd.Flags().Duration("expires", 24*time.Hour, "Signature lifetime, 0 never expires")
	return cmd
}
