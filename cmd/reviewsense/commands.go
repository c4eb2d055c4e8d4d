package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/reviewsense/ai/metrics"
	"github.com/hrygo/reviewsense/ai/summary"
	"github.com/hrygo/reviewsense/internal/version"
	"github.com/hrygo/reviewsense/store"
)

// withApp runs fn with an opened app, closing it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), terminationSignals...)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func parseProductID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid product id %q", arg)
	}
	return id, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				initialized, err := a.store.GetDriver().IsInitialized(ctx)
				if err != nil {
					return err
				}
				if !initialized {
					return errors.New("schema missing after migration")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Database is up to date (driver: %s)\n", a.profile.Driver)
				return nil
			})
		},
	}
}

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Manage product reviews",
	}

	var (
		author string
		rating int32
	)
	add := &cobra.Command{
		Use:   "add <product-id> <content>",
		Short: "Add a review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			content := strings.TrimSpace(args[1])
			if content == "" {
				return errors.New("review content is empty")
			}
			if rating < 1 || rating > 5 {
				return errors.Errorf("rating must be between 1 and 5, got %d", rating)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				review, err := a.store.CreateReview(ctx, &store.Review{
					ProductID: productID,
					Author:    author,
					Rating:    rating,
					Content:   content,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added review %d for product %d\n", review.ID, review.ProductID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&author, "author", "anonymous", "review author")
	add.Flags().Int32Var(&rating, "rating", 5, "rating from 1 to 5")

	var limit int
	list := &cobra.Command{
		Use:   "list <product-id>",
		Short: "List the newest reviews of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseProductID(args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				find := &store.FindReview{ProductID: &productID}
				if limit > 0 {
					find.Limit = &limit
				}
				reviews, err := a.store.ListReviews(ctx, find)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tRATING\tAUTHOR\tCREATED\tCONTENT")
				for _, r := range reviews {
					fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n",
						r.ID, r.Rating, r.Author,
						time.Unix(r.CreatedTs, 0).Format(time.DateTime), r.Content)
				}
				return w.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of reviews, 0 for all")

	cmd.AddCommand(add, list)
	return cmd
}

func newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <product-id>",
		Short: "Print the summary of a product's reviews, generating it on a cache miss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseProductID(args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				svc, err := a.summaryService(ctx)
				if err != nil {
					return err
				}
				text, err := svc.SummarizeReviews(ctx, productID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
}

func newSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Inspect cached summaries",
	}

	show := &cobra.Command{
		Use:   "show <product-id>",
		Short: "Show the cached summary of a product without generating one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseProductID(args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				cache, err := a.summaryCache(ctx)
				if err != nil {
					return err
				}
				rec, err := cache.Get(ctx, summary.ReviewKey(productID))
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if rec == nil {
					fmt.Fprintf(out, "No summary cached for product %d\n", productID)
					return nil
				}
				state := "fresh"
				if !rec.IsFresh(time.Now()) {
					state = "expired"
				}
				fmt.Fprintf(out, "Product:   %d\n", productID)
				fmt.Fprintf(out, "Generated: %s\n", rec.GeneratedAt.Format(time.RFC3339))
				fmt.Fprintf(out, "Expires:   %s (%s)\n", rec.ExpiresAt.Format(time.RFC3339), state)
				fmt.Fprintf(out, "\n%s\n", rec.Content)
				return nil
			})
		},
	}

	cmd.AddCommand(show)
	return cmd
}

func newRefreshCmd() *cobra.Command {
	var (
		limit    int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Regenerate missing or expired summaries",
		Long: `Regenerate the summaries of reviewed products whose summary is missing or expired.
With --interval the pass repeats until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				svc, err := a.summaryService(ctx)
				if err != nil {
					return err
				}
				a.serveMetrics(ctx)

				if interval <= 0 {
					result, err := svc.RefreshStale(ctx, limit)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Checked %d, refreshed %d, failed %d\n",
						result.Checked, result.Refreshed, result.Failed)
					return nil
				}

				slog.Info("Starting summary refresher", "interval", interval, "limit", limit)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					if _, err := svc.RefreshStale(ctx, limit); err != nil && ctx.Err() == nil {
						slog.Error("Summary refresh pass failed", "error", err)
					}
					select {
					case <-ctx.Done():
						slog.Info("Summary refresher stopped")
						return nil
					case <-ticker.C:
					}
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum generations per pass, 0 for no limit")
	cmd.Flags().DurationVar(&interval, "interval", 0, "repeat every interval until interrupted")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Send one prompt through the retrying LLM client, bypassing the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), terminationSignals...)
			defer stop()

			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}
			a := &app{profile: instanceProfile, metrics: metrics.NewPrometheusExporter(metrics.DefaultConfig())}
			client, err := a.llmClient(ctx)
			if err != nil {
				return err
			}
			text, err := client.Generate(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	var require string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.StringFull())
			if require == "" {
				return nil
			}
			if !version.IsValid(require) {
				return errors.Errorf("invalid version %q", require)
			}
			if !version.IsVersionGreaterOrEqualThan(version.Version, require) {
				return errors.Errorf("version %s is older than required %s", version.Version, require)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&require, "require", "", "fail unless this build is at least the given version")
	return cmd
}
