// ABOUTME: Transport control directives for reliable streaming
// ABOUTME: Formats and parses PAUSE, PLAY and SEEK_<ms> lines
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Directive kinds
const (
	CommandPause = "PAUSE"
	CommandPlay  = "PLAY"
	CommandSeek  = "SEEK"
)

// Directive is a single client-to-server control line
type Directive struct {
	Command  string
	TargetMs int64 // only meaningful for SEEK
}

// Pause returns the PAUSE directive
func Pause() Directive { return Directive{Command: CommandPause} }

// Play returns the PLAY directive
func Play() Directive { return Directive{Command: CommandPlay} }

// Seek returns the SEEK directive for targetMs
func Seek(targetMs int64) Directive {
	return Directive{Command: CommandSeek, TargetMs: targetMs}
}

func (d Directive) String() string {
	if d.Command == CommandSeek {
		return fmt.Sprintf("%s_%d", CommandSeek, d.TargetMs)
	}
	return d.Command
}

// FormatDirective returns the newline-terminated wire form of d
func FormatDirective(d Directive) []byte {
	return []byte(d.String() + "\n")
}

// ParseDirective parses one line (with or without terminator)
func ParseDirective(line string) (Directive, error) {
	line = strings.TrimSpace(line)

	switch {
	case line == CommandPause:
		return Pause(), nil
	case line == CommandPlay:
		return Play(), nil
	case strings.HasPrefix(line, CommandSeek+"_"):
		ms, err := strconv.ParseInt(strings.TrimPrefix(line, CommandSeek+"_"), 10, 64)
		if err != nil || ms < 0 {
			return Directive{}, fmt.Errorf("invalid seek target in %q", line)
		}
		return Seek(ms), nil
	default:
		return Directive{}, fmt.Errorf("unknown directive %q", line)
	}
}
