package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sha1n/docfetcher/internal/event"
	"github.com/sha1n/docfetcher/internal/scope"
)

// Job is a request to build, update or rebuild the index of one root scope.
// A job only runs once it is ready for indexing.
type Job struct {
	id            string
	root          *scope.RootScope
	addToRegistry bool
	doRebuild     bool

	mu    sync.Mutex
	ready bool

	// ReadyChanged fires when the ready flag flips.
	ReadyChanged *event.Event[*Job]
}

// NewJob creates a job that is not yet ready for indexing.
//
// addToRegistry marks a scope being onboarded: it is registered once the job
// completes. doRebuild requests a full rebuild instead of an incremental
// update; it has no effect on scopes being onboarded, which are built from
// scratch anyway.
func NewJob(root *scope.RootScope, addToRegistry, doRebuild bool) *Job {
	return &Job{
		id:            uuid.NewString(),
		root:          root,
		addToRegistry: addToRegistry,
		doRebuild:     doRebuild,
		ReadyChanged:  event.New[*Job](nil),
	}
}

// NewReadyJob creates a job that is ready for indexing right away.
func NewReadyJob(root *scope.RootScope, addToRegistry, doRebuild bool) *Job {
	j := NewJob(root, addToRegistry, doRebuild)
	j.ready = true
	return j
}

func (j *Job) ID() string { return j.id }

func (j *Job) Root() *scope.RootScope { return j.root }

func (j *Job) AddToRegistry() bool { return j.addToRegistry }

func (j *Job) DoRebuild() bool { return j.doRebuild }

// IsReady reports whether the job may run.
func (j *Job) IsReady() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.ready
}

// SetReady opens or closes the ready gate.
func (j *Job) SetReady(ready bool) {
	j.mu.Lock()
	changed := j.ready != ready
	j.ready = ready
	j.mu.Unlock()

	if changed {
		j.ReadyChanged.Fire(j)
	}
}

// Equal reports whether both jobs target the same directory.
func (j *Job) Equal(other *Job) bool {
	if j == nil || other == nil {
		return j == other
	}
	return j.root.Path() == other.root.Path()
}

// Kind describes what the job does.
func (j *Job) Kind() string {
	switch {
	case j.addToRegistry:
		return "create"
	case j.doRebuild:
		return "rebuild"
	default:
		return "update"
	}
}

func (j *Job) String() string {
	return fmt.Sprintf("%s %s", j.Kind(), j.root.Path())
}
