// Package status reconciles validation verdicts into the per-query run
// status records written by the benchmark runner.
//
// Each record is a JSON object with at least a queryStatus field, either a
// string or an array of strings such as "Completed" or "Failed".
// Reconciliation sets queryValidationStatus to a one-element array holding
// Pass, Fail or NotAttempted and leaves every other field untouched.
package status

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/segmentio/encoding/json"
)

// Field names inside a run status record.
const (
	FieldQueryStatus      = "queryStatus"
	FieldValidationStatus = "queryValidationStatus"
)

// Query status values that mean the query ran to completion.
const (
	QueryCompleted                 = "Completed"
	QueryCompletedWithTaskFailures = "CompletedWithTaskFailures"
)

// ValidationStatus is the value written to queryValidationStatus.
type ValidationStatus string

const (
	ValidationPass         ValidationStatus = "Pass"
	ValidationFail         ValidationStatus = "Fail"
	ValidationNotAttempted ValidationStatus = "NotAttempted"
)

// ErrInvalidRecord is returned for records that do not match the schema.
var ErrInvalidRecord = errors.New("invalid run status record")

//go:embed schema.cue
var schemaCUE string

// Record is one run status file held in memory.
type Record struct {
	Path   string
	fields map[string]any
}

// LoadRecord reads and validates the record at path.
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run status: %w", err)
	}
	rec, err := ParseRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rec.Path = path
	return rec, nil
}

// ParseRecord validates data against the run status schema and decodes it.
// Numbers are kept as json.Number so that rewriting a record does not
// change their spelling.
func ParseRecord(data []byte) (*Record, error) {
	if err := validateRecord(data); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return &Record{fields: fields}, nil
}

// validateRecord checks data against #RunStatus. A cue.Context is not safe
// for concurrent use, so each call compiles into a fresh one.
func validateRecord(data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile run status schema: %w", err)
	}
	schema = schema.LookupPath(cue.ParsePath("#RunStatus"))

	v := ctx.CompileBytes(data, cue.Filename("record.json"))
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// QueryStatus returns queryStatus as a list, whether it was stored as a
// string or an array.
func (r *Record) QueryStatus() []string {
	return stringList(r.fields[FieldQueryStatus])
}

// ValidationStatus returns the current queryValidationStatus, if any.
func (r *Record) ValidationStatus() []string {
	return stringList(r.fields[FieldValidationStatus])
}

// Field returns a raw top-level field.
func (r *Record) Field(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

func stringList(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Decide returns the validation status of a query from its run status and
// whether its outputs failed validation. A failed query that never
// completed is NotAttempted: there was no output to compare.
func Decide(queryStatus []string, failed bool) ValidationStatus {
	if !failed {
		return ValidationPass
	}
	if slices.Contains(queryStatus, QueryCompleted) || slices.Contains(queryStatus, QueryCompletedWithTaskFailures) {
		return ValidationFail
	}
	return ValidationNotAttempted
}

// Apply sets queryValidationStatus from the record's queryStatus and the
// failed flag, and returns the status written.
func (r *Record) Apply(failed bool) ValidationStatus {
	st := Decide(r.QueryStatus(), failed)
	r.fields[FieldValidationStatus] = []any{string(st)}
	return st
}

// Marshal encodes the record with two-space indentation, keys in sorted
// order and a trailing newline. Strings are written unescaped apart from
// what JSON requires, so fields such as JVM options keep their < > and &.
func (r *Record) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.fields); err != nil {
		return nil, fmt.Errorf("marshal run status: %w", err)
	}
	return buf.Bytes(), nil
}

// Save rewrites the record at its path. The new content is written to a
// temporary file in the same directory and renamed over the existing file.
func (r *Record) Save() error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}

	info, err := os.Stat(r.Path)
	if err != nil {
		return fmt.Errorf("stat run status: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.Path), ".qvalidate-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write run status: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod run status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.Path); err != nil {
		return fmt.Errorf("replace run status: %w", err)
	}
	return nil
}
