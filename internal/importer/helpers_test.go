package importer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/JonMunkholm/bizimport/internal/importer"
	"github.com/JonMunkholm/bizimport/internal/importer/entities"
)

// prospectSpecs returns the registered prospect fields.
func prospectSpecs(t *testing.T) []importer.FieldSpec {
	t.Helper()
	def, err := importer.Lookup(entities.Prospect)
	if err != nil {
		t.Fatalf("Lookup(prospect) error = %v", err)
	}
	return def.Fields
}

func mustTokenize(t *testing.T, text string) *importer.RowTable {
	t.Helper()
	table, err := importer.Tokenize(text, importer.DefaultOptions())
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	return table
}

// recordingSink keeps every batch it receives.
type recordingSink struct {
	mu      sync.Mutex
	batches []importer.Batch
	err     error
}

func (s *recordingSink) Commit(_ context.Context, batch importer.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

var errSinkDown = errors.New("sink unavailable")

const (
	scenarioA = "company,contactName,email\nAcme Corp,Jane Doe,jane@acme.com\n"
	scenarioB = "company,contactName\nAcme Corp,Jane Doe\n"
	scenarioC = "company,contactName,email\nAcme Corp,Jane Doe,jane@acme.com\nGlobex,,john@globex.com\n"
)
