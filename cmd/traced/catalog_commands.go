package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"traced/internal/history"
	"traced/internal/trace"
)

func newCategoriesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the capture categories the host supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			categories, err := engine.ListCategories()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if len(categories) == 0 {
				fmt.Fprintln(stdout, "No categories reported")
				return nil
			}
			rows := make([][]string, 0, len(categories))
			for _, category := range categories {
				rows = append(rows, []string{category.Name, category.Description})
			}
			fmt.Fprintln(stdout, renderTable(stdout, []string{"Category", "Description"}, rows))
			return nil
		},
	}
}

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show recent recording sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.Recent(limit)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(stdout, "No sessions recorded")
				return nil
			}
			rows := make([][]string, 0, len(sessions))
			for _, session := range sessions {
				rows = append(rows, []string{
					session.ID,
					session.Kind.String(),
					strings.Join(session.Tags, ","),
					session.Status,
					sessionArtifact(session),
					session.StartedAt.Format("2006-01-02 15:04:05"),
				})
			}
			headers := []string{"ID", "Kind", "Tags", "Status", "Artifact", "Started"}
			fmt.Fprintln(stdout, renderTable(stdout, headers, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to show")
	return cmd
}

func sessionArtifact(session history.Session) string {
	if session.Status == history.StatusRecording {
		return "(in progress)"
	}
	if session.Artifact == "" {
		return "-"
	}
	return session.Artifact
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all saved recordings from the output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			trace.ClearSavedRecordings(logger, cfg.Paths.OutputDir)
			fmt.Fprintln(cmd.OutOrStdout(), "Saved recordings cleared")
			return nil
		},
	}
}
