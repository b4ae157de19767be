package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/config"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/contributions"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/logging"
)

// withStore loads configuration, opens the configured backend and hands the store to run.
func withStore(cmd *cobra.Command, configViper *viper.Viper, run func(ctx context.Context, store *contributions.Store) error) error {
	appConfig, err := config.Load(configViper)
	if err != nil {
		return err
	}
	logger, err := logging.NewConsoleLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	app, err := newApplication(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck

	return run(ctx, app.store)
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func newSeedCommand(configViper *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Add the sample contributions when the collection is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, configViper, func(ctx context.Context, store *contributions.Store) error {
				seeded, err := store.Seed(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]int{"seeded": seeded})
			})
		},
	}
}

func newListCommand(configViper *viper.Viper) *cobra.Command {
	var projectID string
	var rawType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contributions newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var contributionType contributions.ContributionType
			if rawType != "" {
				parsed, err := contributions.ParseContributionType(rawType)
				if err != nil {
					return err
				}
				contributionType = parsed
			}
			return withStore(cmd, configViper, func(ctx context.Context, store *contributions.Store) error {
				items := store.ListByType(ctx, contributionType)
				if cmd.Flags().Changed("project") {
					items = filterByProject(items, projectID)
				}
				return writeJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Only contributions with this exact project id")
	cmd.Flags().StringVar(&rawType, "type", "", "Only contributions of this type")
	return cmd
}

func filterByProject(items []contributions.Contribution, projectID string) []contributions.Contribution {
	matches := make([]contributions.Contribution, 0, len(items))
	for _, item := range items {
		if item.ProjectID == projectID {
			matches = append(matches, item)
		}
	}
	return matches
}

func newShowCommand(configViper *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print one contribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, configViper, func(ctx context.Context, store *contributions.Store) error {
				contribution, ok := store.GetByID(ctx, args[0])
				if !ok {
					return fmt.Errorf("contribution %s not found", args[0])
				}
				return writeJSON(cmd.OutOrStdout(), contribution)
			})
		},
	}
}

type chainOutput struct {
	RootID       string                    `json:"root_id"`
	Nodes        []contributions.ChainNode `json:"nodes"`
	Summary      chainSummaryOutput        `json:"summary"`
	SkippedEdges int                       `json:"skipped_edges"`
}

type chainSummaryOutput struct {
	Total        int `json:"total"`
	MaxDepth     int `json:"max_depth"`
	Contributors int `json:"contributors"`
}

func newChainCommand(configViper *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "chain ID",
		Short: "Print the contribution chain containing ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, configViper, func(ctx context.Context, store *contributions.Store) error {
				chain := store.GetChain(ctx, args[0])
				summary := chain.Summary()
				return writeJSON(cmd.OutOrStdout(), chainOutput{
					RootID: chain.RootID,
					Nodes:  chain.Nodes,
					Summary: chainSummaryOutput{
						Total:        summary.Total,
						MaxDepth:     summary.MaxDepth,
						Contributors: summary.Contributors,
					},
					SkippedEdges: chain.SkippedEdges,
				})
			})
		},
	}
}

func newAddCommand(configViper *viper.Viper) *cobra.Command {
	var draft contributions.Draft
	var rawType string
	var rawTags string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Validate and add a contribution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			draft.Type = contributions.ContributionType(rawType)
			draft.Tags = contributions.ParseTags(rawTags)
			return withStore(cmd, configViper, func(ctx context.Context, store *contributions.Store) error {
				created, err := store.Create(ctx, draft)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), created)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&draft.Contributor, "contributor", "", "Contributor name")
	flags.StringVar(&draft.ProjectID, "project", "", "Project id or URL")
	flags.StringVar(&rawType, "type", string(contributions.TypeComment), "Contribution type (Comment, Edit, Remix, Suggestion)")
	flags.StringVar(&draft.Description, "description", "", "Description, at least 10 characters")
	flags.StringVar(&draft.ParentContributionID, "parent", "", "Parent contribution id")
	flags.StringVar(&rawTags, "tags", "", "Comma-separated tags")
	return cmd
}

func newResonateCommand(configViper *viper.Viper) *cobra.Command {
	var delta int
	cmd := &cobra.Command{
		Use:   "resonate ID",
		Short: "Adjust a contribution's resonance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, configViper, func(ctx context.Context, store *contributions.Store) error {
				updated, ok := store.UpdateResonance(ctx, args[0], delta)
				if !ok {
					return fmt.Errorf("contribution %s not found", args[0])
				}
				return writeJSON(cmd.OutOrStdout(), updated)
			})
		},
	}
	cmd.Flags().IntVar(&delta, "delta", 1, "Amount to add; negative values subtract, flooring at zero")
	return cmd
}
