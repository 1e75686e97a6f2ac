package perfetto

import (
	"fmt"
	"sort"
	"strings"

	"traced/internal/trace"
)

// Marker guards the heredoc that delivers the rendered configuration to
// the daemon. A rendered configuration containing this sentinel would
// terminate the heredoc early, so rendering refuses to let it through.
const Marker = "PERFETTO_ARGUMENTS"

const (
	megabytesToBytes      = 1024 * 1024
	minutesToMilliseconds = 60 * 1000

	// The total memory allotted to the two target buffers is divided
	// according to a ratio of (bufferSizeRatio - 1) to 1.
	bufferSizeRatio = 32

	// Kernel-side ftrace buffer; independent of the userspace buffers.
	kernelBufferSizeKB = 8192
)

// Capture tags that map to added data sources in the rendered config.
const (
	cameraTag  = "camera"
	gfxTag     = "gfx"
	memoryTag  = "memory"
	networkTag = "network"
	powerTag   = "power"
	schedTag   = "sched"
	webviewTag = "webview"

	// Tags served by traced itself rather than advertised by the daemon.
	sysStatsTag = "sys_stats"
	logTag      = "logs"
	cpuTag      = "cpu"
)

// SplitBufferSizes divides the total per-CPU allotment between the two
// declared buffers. The small buffer gets total/bufferSizeRatio rounded
// down, the large buffer the remainder, so the two always sum exactly.
func SplitBufferSizes(bufferSizeKB, numCPUs int) (buffer0KB, buffer1KB int) {
	total := numCPUs * bufferSizeKB
	buffer1KB = total / bufferSizeRatio
	buffer0KB = total - buffer1KB
	return buffer0KB, buffer1KB
}

// RenderConfig turns a recording request into the daemon's text
// configuration document. Returned warnings report tags that were
// altered or dropped by sanitization; the configuration is still valid.
func RenderConfig(req trace.Request, numCPUs int) (string, []string) {
	var b strings.Builder
	var warnings []string

	appendBaseOptions(&b, req.AttachToBugreport, req.LongTrace,
		req.MaxLongTraceSizeMB, req.MaxLongTraceDurationMinutes)

	// The caller chooses a per-CPU buffer size, so scale by CPU count to
	// reserve the correctly-sized total.
	buffer0KB, buffer1KB := SplitBufferSizes(req.BufferSizeKB, numCPUs)

	// target_buffer 0 carries ftrace and the ftrace-derived gpu counters.
	appendTraceBuffer(&b, buffer0KB)
	// target_buffer 1 carries the additional data sources.
	appendTraceBuffer(&b, buffer1KB)

	tags, tagWarnings := sanitizeTags(req.Tags)
	warnings = append(warnings, tagWarnings...)

	appendFtraceConfig(&b, tags, req.Apps)
	appendProcStatsConfig(&b, tags, 1)
	appendAdditionalDataSources(&b, tags, req.LongTrace, 1)

	return b.String(), warnings
}

// RenderStackSampleConfig renders the callstack-sampling configuration:
// one large buffer fed by linux.perf plus process association.
func RenderStackSampleConfig(attachToBugreport bool, numCPUs int) string {
	var b strings.Builder

	appendBaseOptions(&b, attachToBugreport, false, 0, 0)

	// Number of cores * 16MiB, the default allotment for full traces.
	appendTraceBuffer(&b, numCPUs*16*1024)

	appendLinuxPerfConfig(&b, 0)
	appendProcStatsConfig(&b, nil, 0)

	return b.String()
}

// sanitizeTags dedupes the tag set, strips characters outside
// [A-Za-z0-9_], and reports every tag the stripping changed. Tags left
// empty after sanitization are dropped. The result is sorted so the
// rendered document is deterministic for a given set.
func sanitizeTags(tags []string) (map[string]bool, []string) {
	clean := make(map[string]bool, len(tags))
	var warnings []string
	for _, tag := range tags {
		cleanTag := stripTag(tag)
		if cleanTag != tag {
			warnings = append(warnings, fmt.Sprintf("invalid tag %q sanitized to %q", tag, cleanTag))
		}
		if cleanTag == "" {
			continue
		}
		clean[cleanTag] = true
	}
	return clean, warnings
}

func stripTag(tag string) string {
	var b strings.Builder
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sortedTags(tags map[string]bool) []string {
	out := make([]string, 0, len(tags))
	for tag := range tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// appendBaseOptions emits the options shared by every configuration.
func appendBaseOptions(b *strings.Builder, attachToBugreport, longTrace bool,
	maxLongTraceSizeMB, maxLongTraceDurationMinutes int) {
	b.WriteString("write_into_file: true\n")

	// Flush ftrace every 30s even if cpus are idle.
	b.WriteString("flush_period_ms: 30000\n")

	if attachToBugreport {
		b.WriteString("bugreport_score: 500\n")
	}

	// The daemon notifies traced when the session's status changes.
	b.WriteString("notify_traceur: true\n")

	// Allow previous trace contents to be referenced instead of duplicated.
	b.WriteString("incremental_state_config {\n")
	b.WriteString("  clear_period_ms: 15000\n")
	b.WriteString("}\n")

	if longTrace {
		if maxLongTraceSizeMB != 0 {
			fmt.Fprintf(b, "max_file_size_bytes: %d\n", int64(maxLongTraceSizeMB)*megabytesToBytes)
		}
		if maxLongTraceDurationMinutes != 0 {
			fmt.Fprintf(b, "duration_ms: %d\n", int64(maxLongTraceDurationMinutes)*minutesToMilliseconds)
		}
		fmt.Fprintf(b, "file_write_period_ms: %d\n", 1000)
	} else {
		// Short traces only write at stop, so use the maximum: 7 days.
		fmt.Fprintf(b, "file_write_period_ms: %d\n", 604800000)
	}
}

// appendTraceBuffer declares one ring buffer. Data sources reference
// buffers by the order they are declared here.
func appendTraceBuffer(b *strings.Builder, bufferSizeKB int) {
	b.WriteString("buffers {\n")
	fmt.Fprintf(b, "  size_kb: %d\n", bufferSizeKB)
	b.WriteString("  fill_policy: RING_BUFFER\n")
	b.WriteString("}\n")
}

// appendFtraceConfig emits the core capture sources bound to buffer 0.
func appendFtraceConfig(b *strings.Builder, tags map[string]bool, apps bool) {
	b.WriteString("data_sources {\n")
	b.WriteString("  config {\n")
	b.WriteString("    name: \"linux.ftrace\"\n")
	b.WriteString("    target_buffer: 0\n")
	b.WriteString("    ftrace_config {\n")
	b.WriteString("      symbolize_ksyms: true\n")

	for _, tag := range sortedTags(tags) {
		fmt.Fprintf(b, "      atrace_categories: %q\n", tag)
	}

	if apps {
		b.WriteString("      atrace_apps: \"*\"\n")
	}

	// Dense encoding of the common sched events (sched_switch, sched_waking).
	if tags[schedTag] {
		b.WriteString("      compact_sched {\n")
		b.WriteString("        enabled: true\n")
		b.WriteString("      }\n")
	}

	// Kernel trace buffer size and drain cadence only; unrelated to the
	// userspace buffers declared above.
	fmt.Fprintf(b, "      buffer_size_kb: %d\n", kernelBufferSizeKB)
	b.WriteString("    }\n")
	b.WriteString("  }\n")
	b.WriteString("}\n")
	b.WriteString("\n")

	// Captures initial counter values; updates arrive through ftrace.
	if tags[memoryTag] || tags[gfxTag] {
		appendPlainDataSource(b, "android.gpu.memory", 0)
	}
}

// appendProcStatsConfig emits the process/memory accounting source. A
// nil tag set means stack-sampling mode, which never polls.
func appendProcStatsConfig(b *strings.Builder, tags map[string]bool, targetBuffer int) {
	b.WriteString("data_sources {\n")
	b.WriteString("  config {\n")
	b.WriteString("    name: \"linux.process_stats\"\n")
	fmt.Fprintf(b, "    target_buffer: %d\n", targetBuffer)
	b.WriteString("    process_stats_config {\n")
	if tags[memoryTag] {
		// Poll periodically for process association when memory is traced.
		b.WriteString("      proc_stats_poll_ms: 60000\n")
	} else {
		b.WriteString("      scan_all_processes_on_start: true\n")
	}
	b.WriteString("    }\n")
	b.WriteString("  }\n")
	b.WriteString("}\n")
}

// appendLinuxPerfConfig emits the callstack-sampling source. Sampling
// frequency is in Hz.
func appendLinuxPerfConfig(b *strings.Builder, targetBuffer int) {
	b.WriteString("data_sources: {\n")
	b.WriteString("  config {\n")
	b.WriteString("    name: \"linux.perf\"\n")
	fmt.Fprintf(b, "    target_buffer: %d\n", targetBuffer)
	b.WriteString("    perf_event_config {\n")
	b.WriteString("      all_cpus: true\n")
	b.WriteString("      sampling_frequency: 100\n")
	b.WriteString("    }\n")
	b.WriteString("  }\n")
	b.WriteString("}\n")
}

func appendPlainDataSource(b *strings.Builder, name string, targetBuffer int) {
	b.WriteString("data_sources: {\n")
	b.WriteString("  config {\n")
	fmt.Fprintf(b, "    name: %q\n", name)
	fmt.Fprintf(b, "    target_buffer: %d\n", targetBuffer)
	b.WriteString("  }\n")
	b.WriteString("}\n")
}

// appendAdditionalDataSources emits the per-tag optional sources, all
// bound to the extra buffer.
func appendAdditionalDataSources(b *strings.Builder, tags map[string]bool, longTrace bool, targetBuffer int) {
	if tags[powerTag] {
		b.WriteString("data_sources: {\n")
		b.WriteString("  config {\n")
		b.WriteString("    name: \"android.power\"\n")
		fmt.Fprintf(b, "    target_buffer: %d\n", targetBuffer)
		b.WriteString("    android_power_config {\n")
		if longTrace {
			b.WriteString("      battery_poll_ms: 5000\n")
		} else {
			b.WriteString("      battery_poll_ms: 1000\n")
		}
		b.WriteString("      collect_power_rails: true\n")
		b.WriteString("      battery_counters: BATTERY_COUNTER_CAPACITY_PERCENT\n")
		b.WriteString("      battery_counters: BATTERY_COUNTER_CHARGE\n")
		b.WriteString("      battery_counters: BATTERY_COUNTER_CURRENT\n")
		b.WriteString("    }\n")
		b.WriteString("  }\n")
		b.WriteString("}\n")
	}

	if tags[sysStatsTag] {
		b.WriteString("data_sources: {\n")
		b.WriteString("  config {\n")
		b.WriteString("    name: \"linux.sys_stats\"\n")
		fmt.Fprintf(b, "    target_buffer: %d\n", targetBuffer)
		b.WriteString("    sys_stats_config {\n")
		b.WriteString("      meminfo_period_ms: 1000\n")
		b.WriteString("      vmstat_period_ms: 1000\n")
		b.WriteString("    }\n")
		b.WriteString("  }\n")
		b.WriteString("}\n")
	}

	if tags[logTag] {
		appendPlainDataSource(b, "android.log", targetBuffer)
	}

	if tags[cpuTag] {
		appendLinuxPerfConfig(b, targetBuffer)
	}

	if tags[gfxTag] {
		appendPlainDataSource(b, "android.surfaceflinger.frametimeline", targetBuffer)
	}

	if tags[cameraTag] {
		appendPlainDataSource(b, "android.hardware.camera", targetBuffer)
	}

	if tags[networkTag] {
		b.WriteString("data_sources: {\n")
		b.WriteString("  config {\n")
		b.WriteString("    name: \"android.network_packets\"\n")
		fmt.Fprintf(b, "    target_buffer: %d\n", targetBuffer)
		b.WriteString("    network_packet_trace_config {\n")
		b.WriteString("      poll_ms: 250\n")
		b.WriteString("    }\n")
		b.WriteString("  }\n")
		b.WriteString("}\n")
		// packages_list maps UIDs from network tracing to package names.
		appendPlainDataSource(b, "android.packages_list", targetBuffer)
	}

	// WebView capture also enables Chrome events.
	if tags[webviewTag] {
		chromeTraceConfig := `{` +
			`\"record_mode\":\"record-continuously\",` +
			`\"included_categories\":[\"*\"]` +
			`}`
		for _, name := range []string{"org.chromium.trace_event", "org.chromium.trace_metadata"} {
			b.WriteString("data_sources: {\n")
			b.WriteString("  config {\n")
			fmt.Fprintf(b, "    name: %q\n", name)
			fmt.Fprintf(b, "    target_buffer: %d\n", targetBuffer)
			b.WriteString("    chrome_config {\n")
			fmt.Fprintf(b, "      trace_config: \"%s\"\n", chromeTraceConfig)
			b.WriteString("    }\n")
			b.WriteString("  }\n")
			b.WriteString("}\n")
		}
	}
}
