package perfetto

import (
	"strings"
	"testing"

	"traced/internal/trace"
)

func TestSplitBufferSizes(t *testing.T) {
	for _, bufferKB := range []int{1, 31, 32, 33, 1024, 16384, 65536} {
		for _, cpus := range []int{1, 2, 3, 4, 8, 12, 128} {
			buffer0, buffer1 := SplitBufferSizes(bufferKB, cpus)
			total := bufferKB * cpus
			if buffer1 != total/32 {
				t.Errorf("buffer1 for %d KB x %d cpus = %d, want %d", bufferKB, cpus, buffer1, total/32)
			}
			if buffer0+buffer1 != total {
				t.Errorf("split of %d KB x %d cpus loses memory: %d + %d != %d",
					bufferKB, cpus, buffer0, buffer1, total)
			}
		}
	}
}

func TestRenderConfigAlwaysOnOptions(t *testing.T) {
	cfg, warnings := RenderConfig(trace.Request{BufferSizeKB: 16384}, 4)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	for _, want := range []string{
		"write_into_file: true\n",
		"flush_period_ms: 30000\n",
		"notify_traceur: true\n",
		"incremental_state_config {\n  clear_period_ms: 15000\n}\n",
		"symbolize_ksyms: true",
		"buffer_size_kb: 8192",
		"scan_all_processes_on_start: true",
	} {
		if !strings.Contains(cfg, want) {
			t.Errorf("config missing %q:\n%s", want, cfg)
		}
	}
	if strings.Contains(cfg, "bugreport_score") {
		t.Error("bugreport score emitted without attach flag")
	}
}

func TestRenderConfigShortTrace(t *testing.T) {
	cfg, _ := RenderConfig(trace.Request{BufferSizeKB: 16384}, 4)

	if !strings.Contains(cfg, "file_write_period_ms: 604800000\n") {
		t.Error("short trace missing 7-day write period")
	}
	if strings.Contains(cfg, "max_file_size_bytes") {
		t.Error("short trace must not carry a size cap")
	}
	if strings.Contains(cfg, "duration_ms") {
		t.Error("short trace must not carry a duration cap")
	}
}

func TestRenderConfigLongTraceCaps(t *testing.T) {
	cfg, _ := RenderConfig(trace.Request{
		BufferSizeKB:                16384,
		LongTrace:                   true,
		MaxLongTraceSizeMB:          10240,
		MaxLongTraceDurationMinutes: 30,
	}, 4)

	if !strings.Contains(cfg, "max_file_size_bytes: 10737418240\n") {
		t.Error("long trace missing size cap in bytes")
	}
	if !strings.Contains(cfg, "duration_ms: 1800000\n") {
		t.Error("long trace missing duration cap in milliseconds")
	}
	if !strings.Contains(cfg, "file_write_period_ms: 1000\n") {
		t.Error("long trace missing 1s write period")
	}
}

func TestRenderConfigSchedPowerScenario(t *testing.T) {
	cfg, _ := RenderConfig(trace.Request{
		Tags:                        []string{"sched", "power"},
		BufferSizeKB:                16384,
		LongTrace:                   true,
		MaxLongTraceSizeMB:          0,
		MaxLongTraceDurationMinutes: 10,
	}, 4)

	if !strings.Contains(cfg, "duration_ms: 600000\n") {
		t.Error("missing duration_ms: 600000")
	}
	if strings.Contains(cfg, "max_file_size_bytes") {
		t.Error("size cap emitted for unlimited size")
	}
	if !strings.Contains(cfg, "compact_sched {\n        enabled: true\n      }") {
		t.Error("missing compact_sched block for sched tag")
	}
	if !strings.Contains(cfg, "battery_poll_ms: 5000\n") {
		t.Error("long-trace power source must poll every 5s")
	}
}

func TestRenderConfigShortTracePowerPoll(t *testing.T) {
	cfg, _ := RenderConfig(trace.Request{Tags: []string{"power"}, BufferSizeKB: 16384}, 4)
	if !strings.Contains(cfg, "battery_poll_ms: 1000\n") {
		t.Error("short-trace power source must poll every 1s")
	}
	if !strings.Contains(cfg, "collect_power_rails: true") {
		t.Error("power source missing power rails")
	}
	if got := strings.Count(cfg, "battery_counters:"); got != 3 {
		t.Errorf("battery counter count = %d, want 3", got)
	}
}

func TestRenderConfigBuffers(t *testing.T) {
	cfg, _ := RenderConfig(trace.Request{BufferSizeKB: 16384}, 4)

	// 4 * 16384 = 65536 total; 2048 small, 63488 large.
	if !strings.Contains(cfg, "size_kb: 63488\n") {
		t.Error("missing large buffer")
	}
	if !strings.Contains(cfg, "size_kb: 2048\n") {
		t.Error("missing small buffer")
	}
	if got := strings.Count(cfg, "fill_policy: RING_BUFFER"); got != 2 {
		t.Errorf("ring buffer declarations = %d, want 2", got)
	}
}

func TestRenderConfigTagSanitization(t *testing.T) {
	cfg, warnings := RenderConfig(trace.Request{
		Tags:         []string{"sched", "we$bview", "sched", "!!"},
		BufferSizeKB: 16384,
	}, 4)

	if !strings.Contains(cfg, "atrace_categories: \"webview\"\n") {
		t.Error("sanitized tag not embedded")
	}
	if strings.Contains(cfg, "$") {
		t.Error("unsanitized character leaked into config")
	}
	if got := strings.Count(cfg, "atrace_categories: \"sched\""); got != 1 {
		t.Errorf("duplicate tag emitted %d times", got)
	}
	// Both "we$bview" and "!!" changed under sanitization.
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want 2 entries", warnings)
	}
	for _, w := range warnings {
		if !strings.Contains(w, "sanitized") {
			t.Errorf("warning %q does not mention sanitization", w)
		}
	}
}

func TestRenderConfigEmptyTagSet(t *testing.T) {
	cfg, warnings := RenderConfig(trace.Request{BufferSizeKB: 16384}, 4)
	if len(warnings) != 0 {
		t.Fatalf("warnings for empty tag set: %v", warnings)
	}
	if strings.Contains(cfg, "atrace_categories") {
		t.Error("categories emitted for empty tag set")
	}
	// Always-on sources still present.
	for _, want := range []string{"linux.ftrace", "linux.process_stats"} {
		if !strings.Contains(cfg, want) {
			t.Errorf("always-on source %q missing", want)
		}
	}
}

func TestRenderConfigPerTagSources(t *testing.T) {
	cases := []struct {
		tag     string
		want    []string
		exclude []string
	}{
		{"memory", []string{"android.gpu.memory", "proc_stats_poll_ms: 60000"}, []string{"scan_all_processes_on_start"}},
		{"gfx", []string{"android.gpu.memory", "android.surfaceflinger.frametimeline"}, nil},
		{"sys_stats", []string{"linux.sys_stats", "meminfo_period_ms: 1000", "vmstat_period_ms: 1000"}, nil},
		{"logs", []string{"android.log"}, nil},
		{"cpu", []string{"linux.perf", "all_cpus: true", "sampling_frequency: 100"}, nil},
		{"camera", []string{"android.hardware.camera"}, nil},
		{"network", []string{"android.network_packets", "poll_ms: 250", "android.packages_list"}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.tag, func(t *testing.T) {
			cfg, _ := RenderConfig(trace.Request{Tags: []string{tc.tag}, BufferSizeKB: 16384}, 4)
			for _, want := range tc.want {
				if !strings.Contains(cfg, want) {
					t.Errorf("tag %q: config missing %q", tc.tag, want)
				}
			}
			for _, exclude := range tc.exclude {
				if strings.Contains(cfg, exclude) {
					t.Errorf("tag %q: config must not contain %q", tc.tag, exclude)
				}
			}
		})
	}
}

func TestRenderConfigWebview(t *testing.T) {
	cfg, _ := RenderConfig(trace.Request{Tags: []string{"webview"}, BufferSizeKB: 16384}, 4)

	for _, want := range []string{"org.chromium.trace_event", "org.chromium.trace_metadata"} {
		if !strings.Contains(cfg, want) {
			t.Errorf("webview config missing %q", want)
		}
	}
	want := `trace_config: "{\"record_mode\":\"record-continuously\",\"included_categories\":[\"*\"]}"`
	if got := strings.Count(cfg, want); got != 2 {
		t.Errorf("escaped chrome config appears %d times, want 2:\n%s", got, cfg)
	}
}

func TestRenderConfigAppsWildcard(t *testing.T) {
	cfg, _ := RenderConfig(trace.Request{BufferSizeKB: 16384, Apps: true}, 4)
	if !strings.Contains(cfg, "atrace_apps: \"*\"\n") {
		t.Error("app tracing wildcard missing")
	}
}

func TestRenderConfigBugreportScore(t *testing.T) {
	cfg, _ := RenderConfig(trace.Request{BufferSizeKB: 16384, AttachToBugreport: true}, 4)
	if !strings.Contains(cfg, "bugreport_score: 500\n") {
		t.Error("bugreport score missing")
	}
}

func TestRenderStackSampleConfig(t *testing.T) {
	cfg := RenderStackSampleConfig(true, 8)

	// 8 cores * 16 MiB.
	if !strings.Contains(cfg, "size_kb: 131072\n") {
		t.Error("stack sampling buffer not sized cores*16MiB")
	}
	if got := strings.Count(cfg, "fill_policy: RING_BUFFER"); got != 1 {
		t.Errorf("stack sampling declares %d buffers, want 1", got)
	}
	for _, want := range []string{
		"linux.perf",
		"sampling_frequency: 100",
		"scan_all_processes_on_start: true",
		"bugreport_score: 500",
		"file_write_period_ms: 604800000",
	} {
		if !strings.Contains(cfg, want) {
			t.Errorf("stack sampling config missing %q", want)
		}
	}
	if strings.Contains(cfg, "linux.ftrace") {
		t.Error("stack sampling must not enable ftrace")
	}
}
