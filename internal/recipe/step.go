package recipe

import (
	"encoding/json"
	"strings"
)

// Kind is a Dockerfile instruction.
type Kind string

const (
	KindFrom    Kind = "FROM"
	KindWorkdir Kind = "WORKDIR"
	KindCopy    Kind = "COPY"
	KindRun     Kind = "RUN"
	KindExpose  Kind = "EXPOSE"
	KindCmd     Kind = "CMD"
)

// Step is one build instruction.
type Step struct {
	Kind  Kind
	Args  []string
	Flags []string // e.g. --chown=node, kept verbatim
	JSON  bool     // exec form
}

// String renders the step as a Dockerfile line.
func (s Step) String() string {
	var b strings.Builder
	b.WriteString(string(s.Kind))
	for _, f := range s.Flags {
		b.WriteByte(' ')
		b.WriteString(f)
	}
	if len(s.Args) == 0 {
		return b.String()
	}
	b.WriteByte(' ')
	if !s.JSON {
		b.WriteString(strings.Join(s.Args, " "))
		return b.String()
	}
	quoted := make([]string, len(s.Args))
	for i, a := range s.Args {
		q, _ := json.Marshal(a)
		quoted[i] = string(q)
	}
	b.WriteString("[" + strings.Join(quoted, ", ") + "]")
	return b.String()
}

// words returns the step's arguments split on whitespace, so shell and exec
// forms can be inspected the same way.
func (s Step) words() []string {
	return strings.Fields(strings.Join(s.Args, " "))
}
