package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"searchgate.io/internal/bus"
	"searchgate.io/internal/model"
)

func addIndexConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("language", "", "Analyzer language")
	cmd.Flags().Int("shards", 0, "Number of shards")
	cmd.Flags().Int("replicas", 0, "Number of replicas")
	cmd.Flags().StringToString("synonym", nil, "Synonym groups as word=alt1|alt2")
	cmd.Flags().Bool("store-searchable-metadata", false, "Store searchable metadata")
}

func indexConfigFromFlags(cmd *cobra.Command) model.IndexConfig {
	var cfg model.IndexConfig
	cfg.Language, _ = cmd.Flags().GetString("language")
	cfg.Shards, _ = cmd.Flags().GetInt("shards")
	cfg.Replicas, _ = cmd.Flags().GetInt("replicas")
	cfg.StoreSearchableMetadata, _ = cmd.Flags().GetBool("store-searchable-metadata")
	synonyms, _ := cmd.Flags().GetStringToString("synonym")
	for word, alts := range synonyms {
		if cfg.Synonyms == nil {
			cfg.Synonyms = map[string][]string{}
		}
		cfg.Synonyms[word] = splitPipe(alts)
	}
	return cfg
}

func splitPipe(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool { return r == '|' })
}

func newCreateIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-index APP INDEX",
		Short: "Create an index",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			ifMissing, _ := cmd.Flags().GetBool("if-missing")
			res, err := s.dispatch(cmd.Context(), &bus.CreateIndex{
				Scope:  s.scope(args[0], args[1]),
				Config: indexConfigFromFlags(cmd),
			})
			if err != nil {
				if ifMissing && errors.Is(err, model.ErrResourceExists) {
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "index %s already exists\n", args[1])
				}
				return err
			}
			return printDispatched(cmd.OutOrStdout(), "index "+args[1]+" created", res)
		}),
	}
	cmd.Flags().Bool("if-missing", false, "Succeed when the index already exists")
	addIndexConfigFlags(cmd)
	return cmd
}

func newDeleteIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-index APP INDEX",
		Short: "Delete an index",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			res, err := s.dispatch(cmd.Context(), &bus.DeleteIndex{Scope: s.scope(args[0], args[1])})
			if err != nil {
				return err
			}
			return printDispatched(cmd.OutOrStdout(), "index "+args[1]+" deleted", res)
		}),
	}
}

func newConfigureIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure-index APP INDEX",
		Short: "Reindex an index with new settings",
		Args:  cobra.ExactArgs(2),
		RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
			res, err := s.dispatch(cmd.Context(), &bus.ConfigureIndex{
				Scope:  s.scope(args[0], args[1]),
				Config: indexConfigFromFlags(cmd),
			})
			if err != nil {
				return err
			}
			return printDispatched(cmd.OutOrStdout(), "index "+args[1]+" configured", res)
		}),
	}
	addIndexConfigFlags(cmd)
	return cmd
}
