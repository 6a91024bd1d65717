package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docqa/internal/tui"
)

func chatCMD(flags *globalFlags) *cobra.Command {
	var docID string
	chat := &cobra.Command{
		Use:   "chat [FILE...]",
		Short: "Ingest files and open the interactive client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && docID == "" {
				return fmt.Errorf("give at least one file or --doc")
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// stderr belongs to the terminal UI
			log, closeLog, err := newLogger(cfg.Log, io.Discard)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			a.runJanitor(ctx)

			summary := ""
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				res, err := a.svc.Upload(ctx, filepath.Base(path), data)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				docID, summary = res.DocumentID, res.Summary
			}
			if len(args) == 0 {
				if summary, err = a.svc.Summary(ctx, docID); err != nil {
					return err
				}
			}

			m := tui.New(ctx, a.svc, docID, summary)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
	chat.Flags().StringVar(&docID, "doc", "", "answer from an already ingested document")
	return chat
}
