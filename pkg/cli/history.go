package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skylift-dev/skylift/pkg/domain/deployment"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	var (
		outputJSON bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the deployment history",
		Long: `Show the append-only deployment history, newest first. Every deploy and
rollback run appears here with its outcome and per-function results.

Examples:
  skylift history
  skylift history --limit 10
  skylift history --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore()
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			records, err := store.List()
			if err != nil {
				return fmt.Errorf("failed to read deployment history: %w", err)
			}

			// Newest first for display.
			for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
				records[i], records[j] = records[j], records[i]
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			if outputJSON {
				out := make([]historyEntry, 0, len(records))
				for _, r := range records {
					out = append(out, toHistoryEntry(r))
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			if len(records) == 0 {
				cmd.Println("No deployments recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWHEN\tKIND\tPROVIDER\tPROJECT\tOUTCOME\tFUNCTIONS")
			for _, r := range records {
				kind := string(r.Kind)
				if r.Kind == deployment.KindRollback && !r.RollbackOf.IsZero() {
					kind = fmt.Sprintf("rollback of %s", r.RollbackOf)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
					r.ID, r.Timestamp.Format(time.RFC3339), kind, r.Provider, r.Project, r.Outcome, len(r.Functions))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output history as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many records (0 for all)")

	return cmd
}

// historyEntry is the JSON shape for one history record.
type historyEntry struct {
	ID         string                 `json:"id"`
	Token      string                 `json:"token"`
	Timestamp  time.Time              `json:"timestamp"`
	Project    string                 `json:"project"`
	Provider   string                 `json:"provider"`
	Kind       string                 `json:"kind"`
	RollbackOf string                 `json:"rollback_of,omitempty"`
	Outcome    string                 `json:"outcome"`
	Functions  []historyFunctionState `json:"functions"`
}

type historyFunctionState struct {
	Name        string `json:"name"`
	ArtifactRef string `json:"artifact_ref,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

func toHistoryEntry(r *deployment.Record) historyEntry {
	entry := historyEntry{
		ID:        r.ID.String(),
		Token:     string(r.Token),
		Timestamp: r.Timestamp,
		Project:   r.Project,
		Provider:  string(r.Provider),
		Kind:      string(r.Kind),
		Outcome:   string(r.Outcome),
	}
	if !r.RollbackOf.IsZero() {
		entry.RollbackOf = r.RollbackOf.String()
	}
	for _, fs := range r.Functions {
		entry.Functions = append(entry.Functions, historyFunctionState{
			Name:        fs.Name,
			ArtifactRef: fs.ArtifactRef,
			Status:      string(fs.Status),
			Error:       fs.Error,
		})
	}
	return entry
}
