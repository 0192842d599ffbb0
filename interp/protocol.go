package interp

import "strings"

// Markers frame host calls inside the interpreter guest's stderr stream.
// A guest-side shim writes one of these whenever it needs the host to do
// something it cannot do itself (read a file, schedule a timer, fetch
// the clock). The call marker carries a JSON payload; the flush marker
// says "drain N queued async calls before continuing"; the session
// markers bound a persistent interpreter's lifecycle.
const (
	markerCall      = "\x00SNIPRUN:"
	markerFlush     = "\x00SNIPRUN_FLUSH:"
	markerReady     = "\x00SNIPRUN_READY\x00"
	markerDone      = "\x00SNIPRUN_DONE\x00"
	markerErrPrefix = "\x00SNIPRUN_ERROR:"
	markerEnd       = "\x00"
)

// messageType classifies what findNextMessage located.
type messageType int

const (
	messageNone messageType = iota
	messageCall
	messageFlush
)

// findNextMessage scans content for the earliest protocol marker and
// reports which kind it is. It does not classify the session-lifecycle
// markers (ready/done/error) — those are checked separately by
// checkSessionSignals since they carry no payload to extract.
func findNextMessage(content string) (int, messageType) {
	callIdx := strings.Index(content, markerCall)
	flushIdx := strings.Index(content, markerFlush)

	switch {
	case callIdx == -1 && flushIdx == -1:
		return -1, messageNone
	case callIdx == -1:
		return flushIdx, messageFlush
	case flushIdx == -1:
		return callIdx, messageCall
	case callIdx < flushIdx:
		return callIdx, messageCall
	default:
		return flushIdx, messageFlush
	}
}

// extractMessage pulls the payload following prefix starting at idx out
// of content, up to the next NUL terminator. It returns the payload, the
// remainder of content with the whole framed message removed, and
// whether a terminator was found at all (false means the message is
// still incomplete and the caller should wait for more output).
func extractMessage(content string, idx int, prefix string) (payload, remaining string, ok bool) {
	rest := content[idx+len(prefix):]
	end := strings.IndexByte(rest, 0)
	if end == -1 {
		return "", content, false
	}
	payload = rest[:end]
	remaining = content[:idx] + rest[end+1:]
	return payload, remaining, true
}

// checkSessionSignals reports a session-lifecycle marker if content
// contains one, alongside the text with the marker stripped out.
func checkSessionSignals(content string) (signal string, errText string, remaining string) {
	if idx := strings.Index(content, markerReady); idx != -1 {
		return "ready", "", content[:idx] + content[idx+len(markerReady):]
	}
	if idx := strings.Index(content, markerDone); idx != -1 {
		return "done", "", content[:idx] + content[idx+len(markerDone):]
	}
	if idx := strings.Index(content, markerErrPrefix); idx != -1 {
		payload, rem, ok := extractMessage(content, idx, markerErrPrefix)
		if !ok {
			return "", "", content
		}
		return "error", payload, rem
	}
	return "", "", content
}
