package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/heartmarshall/notetaken-sync/internal/app"
)

var (
	notesSearch string
	notesTag    string
	notesJSON   bool
	resetForce  bool
)

// notesCmd reads the local cache only, so it works offline and while the
// daemon is stopped.
var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "List notes held in the local cache",
	Long: `List the notes held in the local cache, newest first.

Examples:
  notesync notes                  # all cached notes
  notesync notes --search milk    # title or content contains "milk"
  notesync notes --tag work       # notes tagged "work" (name or id)
  notesync notes --json           # machine-readable output`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		found, err := app.CachedNotes(cmd.Context(), cfg.Cache.Path, app.NotesQuery{
			Search: notesSearch,
			Tag:    notesTag,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if notesJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(found)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUPDATED\tTITLE")
		for _, n := range found {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", n.ID, n.UpdatedAt.Local().Format(time.DateTime), n.Title)
		}
		return tw.Flush()
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete everything held in the local cache",
	Long: `Delete every cached note, folder, tag and selection. Remote data is
not touched. Stop the daemon first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !resetForce {
			return fmt.Errorf("refusing to clear the cache without --force")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.ResetCache(cmd.Context(), cfg.Cache.Path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", cfg.Cache.Path)
		return nil
	},
}

func init() {
	notesCmd.Flags().StringVarP(&notesSearch, "search", "s", "", "case-insensitive text filter on title and content")
	notesCmd.Flags().StringVarP(&notesTag, "tag", "t", "", "only notes with this tag (name or id)")
	notesCmd.Flags().BoolVar(&notesJSON, "json", false, "output JSON")

	resetCmd.Flags().BoolVar(&resetForce, "force", false, "confirm clearing the cache")

	rootCmd.AddCommand(notesCmd, resetCmd)
}
