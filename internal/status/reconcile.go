package status

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

var (
	// ErrNoDirectory is returned when the record directory does not exist.
	ErrNoDirectory = errors.New("run status directory does not exist")

	// ErrNoRecord is returned when no record matches a query.
	ErrNoRecord = errors.New("no run status record found")

	// ErrAmbiguousRecord is returned when several records match a query.
	ErrAmbiguousRecord = errors.New("more than one run status record found")
)

// Change describes the status written for one query.
type Change struct {
	Query    string           `json:"query" yaml:"query"`
	Path     string           `json:"path" yaml:"path"`
	Previous []string         `json:"previous,omitempty" yaml:"previous,omitempty"`
	Status   ValidationStatus `json:"status" yaml:"status"`
}

// Reconciler updates the run status records in a directory.
type Reconciler struct {
	dir    string
	logger *zap.Logger
}

// NewReconciler returns a Reconciler for the records in dir. A nil logger
// discards log output.
func NewReconciler(dir string, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{dir: dir, logger: logger}
}

// FindRecord returns the single record file for query id. Records are
// named "<prefix><id>-<suffix>.json".
func (r *Reconciler) FindRecord(id string) (string, error) {
	pattern := filepath.Join(r.dir, "*"+escapeGlob(id)+"-*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", pattern, err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w for query %s in %s", ErrNoRecord, id, r.dir)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w for query %s in %s: %v", ErrAmbiguousRecord, id, r.dir, matches)
	}
}

// LoadRecords locates and loads the record of every query, in order.
func (r *Reconciler) LoadRecords(ids []string) ([]*Record, error) {
	info, err := os.Stat(r.dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNoDirectory, r.dir)
	}

	records := make([]*Record, len(ids))
	for i, id := range ids {
		path, err := r.FindRecord(id)
		if err != nil {
			return nil, err
		}
		if records[i], err = LoadRecord(path); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Reconcile sets the validation status of every query in ids: Pass when
// the query is not in failed, otherwise Fail or NotAttempted depending on
// whether it completed. All records are located and validated before any
// is rewritten, so a missing or malformed record leaves the directory
// unchanged.
func (r *Reconciler) Reconcile(ids []string, failed map[string]bool) ([]Change, error) {
	r.logger.Info("updating run status records", zap.String("dir", r.dir), zap.Int("queries", len(ids)))

	records, err := r.LoadRecords(ids)
	if err != nil {
		return nil, err
	}

	changes := make([]Change, len(ids))
	for i, rec := range records {
		prev := rec.ValidationStatus()
		st := rec.Apply(failed[ids[i]])
		if err := rec.Save(); err != nil {
			return changes[:i], fmt.Errorf("query %s: %w", ids[i], err)
		}
		changes[i] = Change{Query: ids[i], Path: rec.Path, Previous: prev, Status: st}
		r.logger.Debug("updated run status",
			zap.String("query", ids[i]),
			zap.String("path", rec.Path),
			zap.String("status", string(st)),
		)
	}
	return changes, nil
}

// escapeGlob quotes the glob metacharacters of a literal path element.
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
