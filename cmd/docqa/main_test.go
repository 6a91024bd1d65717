package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, closeLog, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closeLog()
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, _, err = newLogger(config.LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "docqa.log")
	log, closeLog, err = newLogger(config.LogConfig{Level: "info", Format: "text", File: file}, &buf)
	require.NoError(t, err)
	log.Info("to file")
	closeLog()
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestBuildAppPersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "storage:\n  data_dir: "+dir+"\nvector_store:\n  type: memory\n")
	cfg, err := loadConfig(&globalFlags{configPath: path, logLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	ctx := context.Background()
	log := slog.New(slog.DiscardHandler)
	a, err := buildApp(ctx, cfg, log)
	require.NoError(t, err)
	res, err := a.svc.Upload(ctx, "python.txt", []byte("Python is a programming language. It was created by Guido van Rossum."))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// memory index is empty after restart; Restore rebuilds it from SQLite
	b, err := buildApp(ctx, cfg, log)
	require.NoError(t, err)
	defer b.Close()
	hits, err := b.svc.Search(ctx, "Guido", res.DocumentID, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Text, "Guido")
}

func TestIngestCommand(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(doc, []byte("# Notes\n\nGo has goroutines and channels."), 0o644))
	path := writeConfig(t, "storage:\n  data_dir: "+dir+"\n")

	cmd := ingestCMD(&globalFlags{configPath: path})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{doc})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	line := strings.TrimSpace(out.String())
	assert.True(t, strings.HasSuffix(line, "\t"+doc))

	cmd = ingestCMD(&globalFlags{configPath: path})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{filepath.Join(dir, "missing.txt")})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
