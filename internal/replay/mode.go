package replay

import (
	"fmt"
	"strings"
)

// Kind names a simulation mode.
type Kind string

const (
	KindNormal Kind = "normal"
	KindRecord Kind = "record"
	KindReplay Kind = "replay"
)

// Mode is fixed for the lifetime of a process.
type Mode struct {
	Kind Kind
	// Path is the recording file for Record and Replay.
	Path string
}

// Normal returns the passthrough mode.
func Normal() Mode { return Mode{Kind: KindNormal} }

// Record returns a mode that writes frames to path.
func Record(path string) Mode { return Mode{Kind: KindRecord, Path: path} }

// Replay returns a mode that plays frames back from path.
func Replay(path string) Mode { return Mode{Kind: KindReplay, Path: path} }

// ParseMode builds a Mode from its textual kind and a recording path.
func ParseMode(kind, path string) (Mode, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case "", KindNormal:
		return Normal(), nil
	case KindRecord:
		if path == "" {
			return Mode{}, fmt.Errorf("record mode requires a recording path")
		}
		return Record(path), nil
	case KindReplay:
		if path == "" {
			return Mode{}, fmt.Errorf("replay mode requires a recording path")
		}
		return Replay(path), nil
	default:
		return Mode{}, fmt.Errorf("unknown mode %q (want normal, record or replay)", kind)
	}
}

// ReadOnly reports whether external writers must be refused.
// A replay owns the intent stream; anything else would desynchronize it.
func (m Mode) ReadOnly() bool {
	return m.Kind == KindReplay
}

// String renders the mode for logs.
func (m Mode) String() string {
	if m.Path == "" {
		return string(m.Kind)
	}
	return fmt.Sprintf("%s(%s)", m.Kind, m.Path)
}
