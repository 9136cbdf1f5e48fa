// Package logging includes tests for the zap logger helpers.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestSuccessTagsOutcome checks the success helper adds the outcome field.
func TestSuccessTagsOutcome(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	Success(zap.New(core), "post committed", zap.String("title", "t"))

	entries := logs.FilterMessage("post committed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["outcome"] != "success" || fields["title"] != "t" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
