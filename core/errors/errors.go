// Package errors defines the error taxonomy of the community orchestrator.
//
// Errors fall into three scopes:
//   - fatal: the run aborts before any job is dispatched (unknown community,
//     malformed tables, workspace I/O, empty selection, concurrent run)
//   - job: the failure is recorded on a single Job and siblings continue
//     (weather field missing, converter failure, timeout, missing artifact)
//   - aggregation: reported in the analysis manifest without touching job outcomes
//
// Callers can use [ScopeOf] to classify an error and the re-exported [Is] and
// [As] helpers to inspect it without importing the standard library package.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions so callers only need this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Scope identifies how far an error propagates.
type Scope string

const (
	ScopeFatal       Scope = "fatal"
	ScopeJob         Scope = "job"
	ScopeAggregation Scope = "aggregation"
	ScopeUnknown     Scope = "unknown"
)

// Sentinel errors
var (
	// ErrUnknownCommunity indicates the community has no row in the requirement table.
	ErrUnknownCommunity = New("unknown community")
	// ErrMalformedTable indicates a backing table is missing columns or has broken rows.
	ErrMalformedTable = New("malformed table")
	// ErrEmptyRequirements indicates every requirement count is zero.
	ErrEmptyRequirements = New("no non-zero requirements")
	// ErrEmptySelection indicates no requirement matched any archetype.
	ErrEmptySelection = New("selection is empty across all requirements")
	// ErrUnknownLocation indicates the weather location cannot be resolved.
	ErrUnknownLocation = New("unknown weather location")
	// ErrJobTimeout indicates the converter exceeded the per-job wall-clock limit.
	ErrJobTimeout = New("job timed out")
	// ErrMissingArtifact indicates the converter did not write the expected time series.
	ErrMissingArtifact = New("expected output artifact missing")
	// ErrConverterFailed indicates the converter exited unsuccessfully.
	ErrConverterFailed = New("converter failed")
	// ErrRunNotFound indicates the run id is not tracked.
	ErrRunNotFound = New("run not found")
	// ErrJobNotFound indicates the job id is not part of the run.
	ErrJobNotFound = New("job not found")
	// ErrResultPending indicates the run has not produced its analysis yet.
	ErrResultPending = New("result pending")
	// ErrIllegalTransition indicates a state change the state machine forbids.
	ErrIllegalTransition = New("illegal state transition")
	// ErrInvalidCommunityName indicates a name that cannot be used as a workspace directory.
	ErrInvalidCommunityName = New("invalid community name")
)

// RequirementLoadError reports a failure to load a community's requirements
// or its weather mapping.
type RequirementLoadError struct {
	Community string
	Table     string
	Err       error
}

func (e *RequirementLoadError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("load requirements for %q from %s: %v", e.Community, e.Table, e.Err)
	}
	return fmt.Sprintf("load requirements for %q: %v", e.Community, e.Err)
}

func (e *RequirementLoadError) Unwrap() error { return e.Err }

// NoMatchError records that a requirement matched zero archetypes. It is a
// 100% shortfall and only becomes fatal when every requirement is empty.
type NoMatchError struct {
	Requirement string
	Patterns    []string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no archetypes match %s (patterns: %s)", e.Requirement, strings.Join(e.Patterns, ", "))
}

// WorkspaceError wraps filesystem failures while preparing or staging a
// community workspace.
type WorkspaceError struct {
	Op   string
	Path string
	Err  error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

// WeatherFieldNotFoundError indicates the archetype has no recognizable
// climate/location block.
type WeatherFieldNotFoundError struct {
	Path string
}

func (e *WeatherFieldNotFoundError) Error() string {
	if e.Path == "" {
		return "weather field not found"
	}
	return fmt.Sprintf("weather field not found in %s", e.Path)
}

// ConcurrentRunError is returned when a run is requested while another is running.
type ConcurrentRunError struct {
	ActiveRunID     string
	ActiveCommunity string
}

func (e *ConcurrentRunError) Error() string {
	return fmt.Sprintf("run %s for %q is already in progress", e.ActiveRunID, e.ActiveCommunity)
}

// AggregationAlignmentError reports contributing series whose timestamp grids differ.
type AggregationAlignmentError struct {
	Reference string
	Model     string
	Detail    string
}

func (e *AggregationAlignmentError) Error() string {
	return fmt.Sprintf("time series of %s is not aligned with %s: %s", e.Model, e.Reference, e.Detail)
}

// JobExecutionError captures why a single job failed.
type JobExecutionError struct {
	Model    string
	ExitCode int
	Summary  string
	Err      error
}

func (e *JobExecutionError) Error() string {
	msg := fmt.Sprintf("job %s: %v", e.Model, e.Err)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if e.Summary != "" {
		msg += ": " + e.Summary
	}
	return msg
}

func (e *JobExecutionError) Unwrap() error { return e.Err }

// NotFoundError reports a missing tracked resource.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Unwrap maps the resource kind onto its sentinel.
func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "run":
		return ErrRunNotFound
	case "job":
		return ErrJobNotFound
	default:
		return nil
	}
}

// NewRunNotFound returns a NotFoundError for a run id.
func NewRunNotFound(id string) error {
	return &NotFoundError{Kind: "run", ID: id}
}

// NewJobNotFound returns a NotFoundError for a job id.
func NewJobNotFound(id string) error {
	return &NotFoundError{Kind: "job", ID: id}
}

// ScopeOf classifies err into the scope that governs its propagation.
func ScopeOf(err error) Scope {
	if err == nil {
		return ScopeUnknown
	}

	var (
		reqErr   *RequirementLoadError
		wsErr    *WorkspaceError
		runErr   *ConcurrentRunError
		fieldErr *WeatherFieldNotFoundError
		jobErr   *JobExecutionError
		alignErr *AggregationAlignmentError
	)

	switch {
	case As(err, &reqErr), As(err, &wsErr), As(err, &runErr),
		Is(err, ErrEmptySelection), Is(err, ErrEmptyRequirements), Is(err, ErrUnknownLocation):
		return ScopeFatal
	case As(err, &fieldErr), As(err, &jobErr),
		Is(err, ErrJobTimeout), Is(err, ErrMissingArtifact), Is(err, ErrConverterFailed):
		return ScopeJob
	case As(err, &alignErr):
		return ScopeAggregation
	default:
		return ScopeUnknown
	}
}

// IsFatal reports whether err aborts a run before dispatch.
func IsFatal(err error) bool {
	return ScopeOf(err) == ScopeFatal
}
