package diag

import (
	"context"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sift/internal/store"
)

// DoctorReport is the health check result for the index and configuration.
type DoctorReport struct {
	Root            string `json:"root"`
	RootExists      bool   `json:"root_exists"`
	DBPath          string `json:"db_path"`
	DBExists        bool   `json:"db_exists"`
	SchemaOK        bool   `json:"schema_ok"`
	SchemaError     string `json:"schema_error,omitempty"`
	FTS5Available   bool   `json:"fts5_available"`
	IndexedSessions int64  `json:"indexed_sessions"`
	NewestMessageAt string `json:"newest_message_at,omitempty"`
}

// RunDoctor probes the sessions root, the database file, and the FTS5
// extension. The probes are independent, so they run concurrently; none of
// them fails the report, they only fill in its fields.
func RunDoctor(ctx context.Context, dbPath, root string) DoctorReport {
	report := DoctorReport{Root: root, DBPath: dbPath}

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		if fi, err := os.Stat(root); err == nil && fi.IsDir() {
			report.RootExists = true
		}
		return nil
	})

	g.Go(func() error {
		// Opening an in-memory database runs the migrations, which
		// create the FTS5 virtual tables.
		s, err := store.Open(":memory:")
		if err == nil {
			report.FTS5Available = true
			s.Close()
		}
		return nil
	})

	g.Go(func() error {
		if _, err := os.Stat(dbPath); err != nil {
			return nil
		}
		report.DBExists = true

		s, err := store.Open(dbPath)
		if err != nil {
			report.SchemaError = err.Error()
			return nil
		}
		defer s.Close()

		count, _, newest, err := s.SessionStats()
		if err != nil {
			report.SchemaError = err.Error()
			return nil
		}
		report.SchemaOK = true
		report.IndexedSessions = count
		report.NewestMessageAt = newest
		return nil
	})

	g.Wait()
	return report
}
