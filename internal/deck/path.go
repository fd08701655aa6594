package deck

import (
	"fmt"
	"strings"
)

// Path addresses a mapping node by its chain of keys from the document root.
type Path []string

// DefaultFactoriesPath is where Albany input decks keep MueLu factory
// definitions, smoothers included.
var DefaultFactoriesPath = Path{
	"ANONYMOUS", "Piro", "NOX", "Direction", "Newton",
	"Stratimikos Linear Solver", "Stratimikos", "Preconditioner Types",
	"MueLu", "Factories",
}

// ParsePath splits a slash-separated key path. Empty segments are rejected.
func ParsePath(s string) (Path, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return nil, fmt.Errorf("empty deck path")
	}
	parts := strings.Split(s, "/")
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("deck path %q: empty segment %d", s, i)
		}
	}
	return Path(parts), nil
}

// Child returns a new path with keys appended.
func (p Path) Child(keys ...string) Path {
	out := make(Path, 0, len(p)+len(keys))
	out = append(out, p...)
	return append(out, keys...)
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

// SmootherPath is the ParameterList of a named smoother factory under base.
func SmootherPath(base Path, smoother string) Path {
	return base.Child(smoother, "ParameterList")
}

// PathError reports the first segment of Path that could not be resolved.
type PathError struct {
	Path    Path
	Segment int
	Reason  string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("deck path %s: %s %q under %q",
		e.Path, e.Reason, e.Path[e.Segment], e.Path[:e.Segment].String())
}
