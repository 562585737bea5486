package lifecycle

// LogCapacity bounds the live event log.
const LogCapacity = 20

// PushLog returns a new log with line in front, truncated to LogCapacity.
func PushLog(log []string, line string) []string {
	n := len(log) + 1
	if n > LogCapacity {
		n = LogCapacity
	}
	out := make([]string, 0, n)
	out = append(out, line)
	for _, l := range log {
		if len(out) == n {
			break
		}
		out = append(out, l)
	}
	return out
}
