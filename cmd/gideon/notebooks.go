package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/gideonlabs/gideon/internal/store"

	"github.com/spf13/cobra"
)

var notebooksCmd = &cobra.Command{
	Use:   "notebooks",
	Short: "Inspect conversation notebooks",
	Long:  `Read the per-topic conversation notebooks straight from the data directory.`,
}

var notebooksLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List notebooks",
	Long:  `Display every topic notebook with its message count and last update time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		notebooksDir := filepath.Join(cfg.Store.DataPath, "notebooks")
		entries, err := os.ReadDir(notebooksDir)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No notebooks found (data directory is empty).")
				return nil
			}
			return fmt.Errorf("failed to read notebooks directory: %w", err)
		}

		type row struct {
			topicID  string
			messages int
			updated  string
		}
		rows := make([]row, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(notebooksDir, entry.Name()))
			if err != nil {
				return fmt.Errorf("failed to read notebook %s: %w", entry.Name(), err)
			}
			var conv store.Conversation
			if err := json.Unmarshal(data, &conv); err != nil {
				return fmt.Errorf("failed to parse notebook %s: %w", entry.Name(), err)
			}
			rows = append(rows, row{
				topicID:  strings.TrimSuffix(entry.Name(), ".json"),
				messages: len(conv.Messages),
				updated:  conv.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}

		if len(rows) == 0 {
			fmt.Println("No notebooks found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TOPIC\tMESSAGES\tLAST UPDATED")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%s\n", r.topicID, r.messages, r.updated)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}

		fmt.Printf("\nTotal: %d notebook(s)\n", len(rows))
		return nil
	},
}

func init() {
	notebooksCmd.AddCommand(notebooksLsCmd)
	rootCmd.AddCommand(notebooksCmd)
}
