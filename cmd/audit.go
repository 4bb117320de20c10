package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/frahmantamala/iam-service/internal/audit"
	auditPostgres "github.com/frahmantamala/iam-service/internal/audit/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail commands",
}

var (
	tailLimit    int
	tailFollow   bool
	tailInterval time.Duration
)

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the most recent audit entries",
	Long:  `Print the most recent audit entries, oldest first. With --follow, keep polling for new ones.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := mustLoadConfig()

		db, err := sqlx.Connect("pgx", cfg.Database.Source)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return tailAudit(ctx, auditPostgres.NewAuditRepository(db), os.Stdout)
	},
}

func init() {
	auditTailCmd.Flags().IntVarP(&tailLimit, "limit", "n", 20, "number of entries to print")
	auditTailCmd.Flags().BoolVarP(&tailFollow, "follow", "f", false, "keep printing new entries")
	auditTailCmd.Flags().DurationVar(&tailInterval, "interval", 2*time.Second, "poll interval with --follow")

	auditCmd.AddCommand(auditTailCmd)
}

func tailAudit(ctx context.Context, store audit.Store, out io.Writer) error {
	var lastID int64
	for {
		entries, err := store.Latest(ctx, audit.ClampLimit(tailLimit))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("load audit entries: %w", err)
		}
		lastID = printAuditEntries(out, entries, lastID)

		if !tailFollow {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(tailInterval):
		}
	}
}

// printAuditEntries writes entries newer than afterID, oldest first, and
// returns the highest id printed.
func printAuditEntries(out io.Writer, entries []audit.Entry, afterID int64) int64 {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.ID <= afterID {
			continue
		}
		actor := "-"
		if e.ActorID != nil {
			actor = fmt.Sprintf("%d", *e.ActorID)
		}
		fmt.Fprintf(w, "%s\t%d\tactor=%s\t%s\t%s/%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.ID, actor, e.Action, e.ResourceType, e.ResourceID, string(e.Details))
		if e.ID > afterID {
			afterID = e.ID
		}
	}
	return afterID
}
