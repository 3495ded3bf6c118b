package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/qareview/internal/config"
	"github.com/kalambet/qareview/internal/dataset"
	"github.com/kalambet/qareview/internal/profile"
	"github.com/kalambet/qareview/internal/review"
)

// --- init ---

var initCmd = &cobra.Command{
	Use:   "init <reviewer>...",
	Short: "Create empty profiles for reviewers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		src, err := datasetSource(cfg)
		if err != nil {
			return err
		}
		store, err := openBackend(cfg, src)
		if err != nil {
			return err
		}
		defer store.Close()

		for _, id := range args {
			if err := review.Init(cmd.Context(), store, id); err != nil {
				return err
			}
			printSuccess("Initialised %s", strings.TrimSpace(id))
		}
		return nil
	},
}

// --- reviewers ---

var reviewersCmd = &cobra.Command{
	Use:   "reviewers",
	Short: "List reviewers in the configured partition",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		src, err := datasetSource(cfg)
		if err != nil {
			return err
		}
		store, err := openBackend(cfg, src)
		if err != nil {
			return err
		}
		defer store.Close()

		sums, err := store.ListReviewers(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing reviewers: %w", err)
		}
		if len(sums) == 0 {
			printWarning("No reviewers in partition %s", src.Partition())
			return nil
		}

		t := newTable(cmd.OutOrStdout(), "Reviewer", "State", "Updated")
		for _, s := range sums {
			state := colorize(colorYellow, "in progress")
			if s.Complete {
				state = colorize(colorGreen, "complete")
			}
			t.AppendRow([]any{s.ID, state, s.UpdatedAt.Local().Format("2006-01-02 15:04")})
		}
		t.Render()
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dataset, storage and server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewer, _ := cmd.Flags().GetString("reviewer")
		return showStatus(cmd.Context(), reviewer)
	},
}

func init() {
	statusCmd.Flags().String("reviewer", "", "show live progress for this reviewer from the running server")
}

func showStatus(ctx context.Context, reviewer string) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := newAPIClient(cfg)
	running := client.healthy(ctx)
	if running {
		printStatus("Server", "running on port %d", cfg.Server.Port)
		if sessions, err := client.sessions(ctx); err == nil {
			printStatus("Open sessions", "%d %v", len(sessions.Active), sessions.Active)
		}
	} else {
		printStatus("Server", "stopped")
	}

	src, err := datasetSource(cfg)
	if err != nil {
		return err
	}
	printStatus("Dataset", "%s", src.Path())
	printStatus("Partition", "%s", src.Partition())
	if items, err := dataset.Load(src); err == nil {
		printStatus("Queue length", "%d", len(items))
	} else {
		printStatus("Queue length", "unreadable (%v)", err)
	}

	printStatus("Backend", "%s", cfg.Storage.Backend)
	if store, err := openBackend(cfg, src); err == nil {
		if sums, err := store.ListReviewers(ctx); err == nil {
			done := 0
			for _, s := range sums {
				if s.Complete {
					done++
				}
			}
			printStatus("Reviewers", "%d (%d complete)", len(sums), done)
		}
		store.Close()
	}
	if cfg.Publish.Enabled {
		printStatus("Publishing", "s3://%s/%s", cfg.Publish.Bucket, cfg.Publish.Prefix)
	}

	if reviewer == "" {
		return nil
	}
	if !running {
		return fmt.Errorf("reviewer progress needs a running server")
	}
	resp, err := client.get(ctx, client.reviewerPath(reviewer))
	if err != nil {
		return err
	}
	var st review.Status
	if err := decodeJSON(resp, &st); err != nil {
		return err
	}
	printStatus("Reviewer", "%s", st.Reviewer)
	printStatus("Position", "%d / %d", st.Position, st.Total)
	printStatus("Judged", "%d", st.Judged)
	printStatus("Unsuitable", "%d", st.Unsuitable)
	printStatus("Complete", "%t", st.Complete)
	return nil
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export [reviewer]",
	Short: "Write reviewer documents in the legacy per-reviewer directory layout",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		out, _ := cmd.Flags().GetString("out")
		if all == (len(args) == 1) {
			return fmt.Errorf("give either a reviewer or --all")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		src, err := datasetSource(cfg)
		if err != nil {
			return err
		}
		store, err := openBackend(cfg, src)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		ids := args
		if all {
			sums, err := store.ListReviewers(ctx)
			if err != nil {
				return fmt.Errorf("listing reviewers: %w", err)
			}
			ids = make([]string, len(sums))
			for i, s := range sums {
				ids[i] = s.ID
			}
		}

		printStep("Exporting %d reviewer(s) from partition %s", len(ids), src.Partition())
		n, err := exportReviewers(ctx, store, ids, out)
		if err != nil {
			return err
		}
		printSuccess("Exported %d reviewer(s) to %s", n, out)
		return nil
	},
}

func init() {
	exportCmd.Flags().Bool("all", false, "export every reviewer in the partition")
	exportCmd.Flags().String("out", "export", "output directory")
}

func exportReviewers(ctx context.Context, store backend, ids []string, out string) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		g.Go(func() error {
			docs, err := store.Documents(gctx, id)
			if err != nil {
				return fmt.Errorf("reading %s: %w", id, err)
			}
			return writeDocuments(filepath.Join(out, id), docs)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func writeDocuments(dir string, docs profile.Documents) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), docs[name], 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

// --- aggregate ---

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <profile.json>",
	Short: "Rebuild the verified dataset and review lists from a judgement file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		title, _ := cmd.Flags().GetString("title")
		if out == "" {
			out = filepath.Dir(args[0])
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading judgements: %w", err)
		}
		p, err := profile.Decode(profile.Documents{profile.DocJudgements: data})
		if err != nil {
			return err
		}

		result := review.Aggregate(p.Judgements, review.AggregateOptions{Title: title})
		docs, err := result.Documents()
		if err != nil {
			return fmt.Errorf("encoding artifacts: %w", err)
		}
		if err := writeDocuments(out, docs); err != nil {
			return err
		}

		printSuccess("Aggregated %d judgement(s) into %s", len(p.Judgements), out)
		printStatus("Unnatural", "%d", len(result.Unnatural))
		printStatus("Incorrect", "%d", len(result.Incorrect))
		return nil
	},
}

func init() {
	aggregateCmd.Flags().String("out", "", "output directory (default: next to the input file)")
	aggregateCmd.Flags().String("title", review.DefaultDatasetTitle, "article title in the verified dataset")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
