package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func ingestCMD(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Register documents and print their ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			log, closeLog, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer closeLog()

			a, err := buildApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					log.Error("read failed", "path", path, "err", err)
					failed++
					continue
				}
				res, err := a.svc.Upload(cmd.Context(), filepath.Base(path), data)
				if err != nil {
					log.Error("ingest failed", "path", path, "err", err)
					failed++
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", res.DocumentID, path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}
