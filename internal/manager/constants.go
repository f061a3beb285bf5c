// Package manager owns capture persistence: policy, canonical naming, and
// outcome recording.
package manager

// Persistence constants
const (
	// Timestamped-history file naming, second precision. Two captures in
	// the same wall-clock second map to the same name; the later rename
	// wins. Known limitation.
	TimestampLayout = "2006-01-02_150405"

	// Prefix for in-progress files. Backends write here; the manager
	// renames into place so readers never see a truncated PNG.
	tmpPrefix = ".tmp-"

	// Max pHash Hamming distance for two captures to count as duplicates.
	MaxHashDistance = 5

	dirMode = 0o755
)
