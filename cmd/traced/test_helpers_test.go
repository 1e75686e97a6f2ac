package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"traced/internal/trace"
)

// fakeEngine is a scripted trace.Engine so commands run without a
// perfetto binary on the host.
type fakeEngine struct {
	startOK  bool
	dumpOK   bool
	startErr error

	active      bool
	lastRequest *trace.Request
	stackStarts int
	stopCalls   int
	dumpPath    string
	categories  []trace.Category
}

func (f *fakeEngine) Name() string            { return "PERFETTO" }
func (f *fakeEngine) OutputExtension() string { return "perfetto-trace" }

func (f *fakeEngine) TraceStart(req trace.Request) (bool, error) {
	f.lastRequest = &req
	if f.startErr != nil {
		return false, f.startErr
	}
	if f.startOK {
		f.active = true
	}
	return f.startOK, nil
}

func (f *fakeEngine) StackSampleStart(attachToBugreport bool) (bool, error) {
	f.stackStarts++
	if f.startOK {
		f.active = true
	}
	return f.startOK, nil
}

func (f *fakeEngine) TraceStop() error {
	f.stopCalls++
	f.active = false
	return nil
}

func (f *fakeEngine) TraceDump(outPath string) (bool, error) {
	f.dumpPath = outPath
	if !f.dumpOK {
		return false, nil
	}
	f.active = false
	if err := os.WriteFile(outPath, []byte("recording"), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeEngine) IsTracingOn() (bool, error) { return f.active, nil }

func (f *fakeEngine) ListCategories() ([]trace.Category, error) {
	return f.categories, nil
}

var _ trace.Engine = (*fakeEngine)(nil)

type cliTestEnv struct {
	baseDir    string
	outputDir  string
	configPath string
	engine     *fakeEngine
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	outputDir := filepath.Join(base, "traces")
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(
		"[paths]\noutput_dir = %q\n\n[logging]\nlevel = \"error\"\n",
		outputDir,
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{
		baseDir:    base,
		outputDir:  outputDir,
		configPath: configPath,
		engine:     &fakeEngine{startOK: true, dumpOK: true},
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := buildRootCommand(env.engine)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
