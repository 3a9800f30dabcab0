// Package stacktrace condenses raw goroutine stacks down to the frames that
// belong to this repository.
package stacktrace

import "strings"

// InternalPaths extracts the internal/... file:line entries from a stack
// produced by debug.Stack. Frames outside internal/ are dropped.
func InternalPaths(stack []byte) []string {
	var paths []string

	for _, line := range strings.Split(string(stack), "\n") {
		line = strings.TrimSpace(line)

		cut := strings.Index(line, ".go:")
		if cut == -1 {
			continue
		}

		start := strings.Index(line, "/internal/")
		if start == -1 || start > cut {
			continue
		}

		end := strings.IndexByte(line[cut:], ' ')
		if end == -1 {
			end = len(line)
		} else {
			end += cut
		}

		paths = append(paths, line[start+1:end])
	}

	return paths
}
