package perfetto

import (
	"bufio"
	"bytes"
	"errors"
	"sort"
	"strconv"
	"strings"

	"traced/internal/execx"
	"traced/internal/logging"
	"traced/internal/trace"
)

// Synthetic catalog entries served by traced itself. The daemon never
// advertises these, so they are merged into every listing.
var syntheticCategories = []trace.Category{
	{Name: sysStatsTag, Description: "meminfo and vmstats"},
	{Name: logTag, Description: "android logcat"},
	{Name: cpuTag, Description: "callstack samples"},
}

// ListCategories queries the daemon for its supported capture
// categories and merges in the synthetic entries. A query timeout
// yields a catalog containing only the synthetic entries, not an
// error. The result is sorted by name.
func (e *Engine) ListCategories() ([]trace.Category, error) {
	var out bytes.Buffer
	cmd := e.binary + " --query"

	e.logger.Debug("listing capture categories", logging.String("command", cmd))

	// Stdout must be consumed while the process runs; the drain goroutine
	// inside the runner takes care of that before any forced kill.
	code, err := e.runner.RunWithDeadline(cmd, execx.Options{Stdout: &out, Tag: "perfetto"}, e.listTimeout)
	if errors.Is(err, execx.ErrTimeout) {
		e.logger.Error("category listing timed out", logging.Duration("timeout", e.listTimeout))
		return mergeSynthetic(nil), nil
	}
	if err != nil {
		return nil, err
	}
	if code != 0 {
		// The query failed but whatever arrived on stdout is still usable.
		e.logger.Error("category listing failed", logging.Int("exit_code", code))
	}

	return mergeSynthetic(parseAtraceCategories(out.String())), nil
}

// parseAtraceCategories walks the daemon's text-formatted service state
// and extracts the kernel event categories advertised by the
// linux.ftrace data source.
func parseAtraceCategories(state string) []trace.Category {
	var (
		found      []trace.Category
		inFtrace   bool
		inCategory bool
		current    trace.Category
	)

	scanner := bufio.NewScanner(strings.NewReader(state))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case inCategory:
			if line == "}" {
				if current.Name != "" {
					found = append(found, current)
				}
				current = trace.Category{}
				inCategory = false
				continue
			}
			if key, value, ok := parseField(line); ok {
				switch key {
				case "name":
					current.Name = value
				case "description":
					current.Description = value
				}
			}
		case inFtrace:
			if strings.HasPrefix(line, "atrace_categories") && strings.HasSuffix(line, "{") {
				inCategory = true
				continue
			}
			// A name field for a different source means the ftrace
			// descriptor is over.
			if key, value, ok := parseField(line); ok && key == "name" && value != "linux.ftrace" {
				inFtrace = false
			}
		default:
			if key, value, ok := parseField(line); ok && key == "name" && value == "linux.ftrace" {
				inFtrace = true
			}
		}
	}
	return found
}

// parseField splits a `key: value` line, unquoting string values.
func parseField(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	if strings.HasPrefix(value, "\"") {
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		}
	}
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// mergeSynthetic overlays the synthetic entries onto the daemon-sourced
// ones and returns a catalog sorted by name.
func mergeSynthetic(daemonSourced []trace.Category) []trace.Category {
	byName := make(map[string]string, len(daemonSourced)+len(syntheticCategories))
	for _, c := range daemonSourced {
		byName[c.Name] = c.Description
	}
	for _, c := range syntheticCategories {
		byName[c.Name] = c.Description
	}

	out := make([]trace.Category, 0, len(byName))
	for name, description := range byName {
		out = append(out, trace.Category{Name: name, Description: description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
