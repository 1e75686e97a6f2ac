package main

import (
	"strings"
	"time"
)

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// splitTags turns a comma-separated flag value into a tag list,
// trimming whitespace and dropping empty entries.
func splitTags(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
