package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/models"
	"community-orchestrator/core/weather"
	"community-orchestrator/core/workspace"
)

const archetype = `<HouseFile>
        <Weather depthOfFrost="1.2192" heatingDegreeDay="4500" library="Wth110.dir">
            <Region code="7">
                <English>ONTARIO</English>
                <French>ONTARIO</French>
            </Region>
            <Location code="42">
                <English>TIMMINS</English>
                <French>TIMMINS</French>
            </Location>
        </Weather>
</HouseFile>
`

var testRef = weather.Reference{
	Location: "OLD CROW", LocationCode: "77", HDD: "9999", Library: "Wth2020.dir",
	Region: weather.Region{Code: "11", English: "YUKON", French: "YUKON"},
}

// writingConverter writes the expected artifact unless the input is listed in fail.
func writingConverter(fail map[string]bool) ConverterFunc {
	return func(ctx context.Context, input, outputDir string) (*ConvertResult, error) {
		name := filepath.Base(input)
		content, err := os.ReadFile(input)
		if err != nil {
			return nil, err
		}
		if !strings.Contains(string(content), "OLD CROW") {
			return &ConvertResult{ExitCode: 3, Output: "weather not mutated"}, fmt.Errorf("%w: exit 3", errors.ErrConverterFailed)
		}
		if fail[name] {
			// exits cleanly but produces nothing
			return &ConvertResult{Output: "simulation skipped"}, nil
		}
		artifact := ExpectedArtifact(outputDir, input)
		if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
			return nil, err
		}
		return &ConvertResult{}, os.WriteFile(artifact, []byte("Time,Load: Heating: Delivered\n"), 0o644)
	}
}

func stageJobs(t *testing.T, n int) (workspace.Layout, []Task) {
	t.Helper()
	m := workspace.NewManager(t.TempDir(), nil)
	layout, err := m.Prepare("Old Crow")
	if err != nil {
		t.Fatal(err)
	}
	tasks := make([]Task, n)
	for i := range tasks {
		model := fmt.Sprintf("pre-2000-single_%d.H2K", i+1)
		path := filepath.Join(layout.Archetypes, model)
		if err := os.WriteFile(path, []byte(archetype), 0o644); err != nil {
			t.Fatal(err)
		}
		tasks[i] = Task{
			Job: models.Job{
				ID: fmt.Sprintf("job-%d", i+1), RunID: "run-1", Model: model,
				Requirement: "pre-2000-single", ArchetypePath: path, Status: models.JobStatusPending,
			},
			Reference: testRef,
			Layout:    layout,
		}
	}
	return layout, tasks
}

type recordingReporter struct {
	mu       sync.Mutex
	started  []string
	finished map[string]models.JobStatus
}

func (r *recordingReporter) JobStarted(runID, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, jobID)
	return nil
}

func (r *recordingReporter) JobFinished(runID string, o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = map[string]models.JobStatus{}
	}
	r.finished[o.JobID] = o.Status
	return nil
}

func TestPoolIsolatesFailures(t *testing.T) {
	layout, tasks := stageJobs(t, 5)
	runner := NewRunner(writingConverter(map[string]bool{"pre-2000-single_3.H2K": true}), nil, time.Minute, nil)
	reporter := &recordingReporter{}

	outcomes := NewPool(2, runner, reporter, nil).Run(context.Background(), tasks)

	for i, o := range outcomes {
		want := models.JobStatusSucceeded
		if i == 2 {
			want = models.JobStatusFailed
		}
		if o.Status != want {
			t.Errorf("job %d status = %s, want %s (err %v)", i+1, o.Status, want, o.Err)
		}
	}
	if !errors.Is(outcomes[2].Err, errors.ErrMissingArtifact) {
		t.Errorf("job 3 error = %v, want missing artifact", outcomes[2].Err)
	}
	if !strings.Contains(outcomes[2].Err.Error(), "simulation skipped") {
		t.Errorf("error summary missing converter output: %v", outcomes[2].Err)
	}

	entries, err := os.ReadDir(layout.Timeseries)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Errorf("timeseries dir has %d files, want 4", len(entries))
	}
	if _, err := os.Stat(filepath.Join(layout.Timeseries, "pre-2000-single_1-results_timeseries.csv")); err != nil {
		t.Errorf("collected artifact missing: %v", err)
	}

	if len(reporter.started) != 5 || len(reporter.finished) != 5 {
		t.Errorf("reporter saw %d starts and %d finishes", len(reporter.started), len(reporter.finished))
	}
}

func TestPoolRespectsWorkerLimit(t *testing.T) {
	_, tasks := stageJobs(t, 8)
	var active, peak int32
	conv := ConverterFunc(func(ctx context.Context, input, outputDir string) (*ConvertResult, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return writingConverter(nil)(ctx, input, outputDir)
	})

	outcomes := NewPool(3, NewRunner(conv, nil, time.Minute, nil), nil, nil).Run(context.Background(), tasks)
	if len(outcomes) != 8 {
		t.Fatalf("got %d outcomes", len(outcomes))
	}
	if peak > 3 {
		t.Errorf("peak concurrency %d exceeds pool size 3", peak)
	}
}

func TestRunnerMutatesBeforeConverting(t *testing.T) {
	_, tasks := stageJobs(t, 1)
	out := NewRunner(writingConverter(nil), nil, time.Minute, nil).Execute(context.Background(), tasks[0])
	if out.Status != models.JobStatusSucceeded {
		t.Fatalf("status = %s: %v", out.Status, out.Err)
	}
}

func TestRunnerWeatherFieldMissing(t *testing.T) {
	_, tasks := stageJobs(t, 1)
	if err := os.WriteFile(tasks[0].Job.ArchetypePath, []byte("<HouseFile/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	called := false
	conv := ConverterFunc(func(ctx context.Context, input, outputDir string) (*ConvertResult, error) {
		called = true
		return &ConvertResult{}, nil
	})

	out := NewRunner(conv, nil, time.Minute, nil).Execute(context.Background(), tasks[0])
	var fieldErr *errors.WeatherFieldNotFoundError
	if out.Status != models.JobStatusFailed || !errors.As(out.Err, &fieldErr) {
		t.Fatalf("outcome = %+v", out)
	}
	if called {
		t.Error("converter invoked although mutation failed")
	}
}

func TestRunnerTimeout(t *testing.T) {
	_, tasks := stageJobs(t, 1)
	conv := ConverterFunc(func(ctx context.Context, input, outputDir string) (*ConvertResult, error) {
		<-ctx.Done()
		return &ConvertResult{ExitCode: -1}, errors.ErrJobTimeout
	})

	out := NewRunner(conv, nil, 30*time.Millisecond, nil).Execute(context.Background(), tasks[0])
	if out.Status != models.JobStatusFailed || !errors.Is(out.Err, errors.ErrJobTimeout) {
		t.Fatalf("outcome = %+v", out)
	}
	if errors.ScopeOf(out.Err) != errors.ScopeJob {
		t.Errorf("scope = %s", errors.ScopeOf(out.Err))
	}
}

func TestCommandConverterArgs(t *testing.T) {
	c := NewCommandConverter("h2k-hpxml", "run --input {input} --output {output} --hourly ALL", nil)
	got := c.Args("/w/a b.H2K", "/w/out")
	want := []string{"run", "--input", "/w/a b.H2K", "--output", "/w/out", "--hourly", "ALL"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Args = %q, want %q", got, want)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "convert.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandConverterProcess(t *testing.T) {
	script := writeScript(t, `stem=$(basename "$1" .H2K)
mkdir -p "$2/$stem/run"
echo "Time" > "$2/$stem/run/results_timeseries.csv"
echo done
`)
	dir := t.TempDir()
	input := filepath.Join(dir, "pre-2000-single_A.H2K")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "output")

	res, err := NewCommandConverter(script, "{input} {output}", nil).Convert(context.Background(), input, out)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.ExitCode != 0 || !strings.Contains(res.Output, "done") {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(ExpectedArtifact(out, input)); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
}

func TestCommandConverterFailureAndTimeout(t *testing.T) {
	failing := writeScript(t, "echo boom >&2\nexit 4\n")
	res, err := NewCommandConverter(failing, "{input}", nil).Convert(context.Background(), "/tmp/x.H2K", "/tmp/out")
	if !errors.Is(err, errors.ErrConverterFailed) {
		t.Fatalf("err = %v, want ErrConverterFailed", err)
	}
	if res.ExitCode != 4 || !strings.Contains(res.Output, "boom") {
		t.Errorf("result = %+v", res)
	}

	slow := writeScript(t, "exec sleep 5\n")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = NewCommandConverter(slow, "{input}", nil).Convert(ctx, "/tmp/x.H2K", "/tmp/out")
	if !errors.Is(err, errors.ErrJobTimeout) {
		t.Fatalf("err = %v, want ErrJobTimeout", err)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	tb := newTailBuffer(4)
	tb.Write([]byte("abc"))
	tb.Write([]byte("defg"))
	if got := tb.String(); got != "defg" {
		t.Errorf("tail = %q, want defg", got)
	}
}
