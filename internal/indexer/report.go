package indexer

import (
	"time"

	"github.com/sha1n/docfetcher/internal/parse"
)

// Failure is a file that could not be indexed.
type Failure struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Report summarizes one indexing pass over a scope.
type Report struct {
	Root      string    `json:"root"`
	Rebuild   bool      `json:"rebuild"`
	Indexed   int       `json:"indexed"`
	Unchanged int       `json:"unchanged"`
	Removed   int       `json:"removed"`
	Skipped   int       `json:"skipped"`
	Failures  []Failure `json:"failures,omitempty"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
}

// Duration returns how long the pass took.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

func (r *Report) addFailure(path string, err error) {
	kind := "error"
	if k, ok := parse.KindOf(err); ok {
		kind = k.String()
	}
	r.Failures = append(r.Failures, Failure{Path: path, Kind: kind, Message: err.Error()})
}
