package scan

import "fmt"

// State is the phase of a scan session.
type State int

const (
	Idle State = iota
	Scanning
	Recognized
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Recognized:
		return "recognized"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
