// internal/gauge/sequence.go
package gauge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var (
	actionPattern = regexp.MustCompile(`^(CC_On|CC_Off)\(\s*([A-Za-z0-9]+)\s*\)$`)
	notInPattern  = regexp.MustCompile(`"([^"]*)"\s+not\s+in\s+([A-Za-z_][A-Za-z0-9_]*)`)
	inPattern     = regexp.MustCompile(`"([^"]*)"\s+in\s+([A-Za-z_][A-Za-z0-9_]*)`)
)

// Step is one warm-up action with its optional guard
type Step struct {
	Text      string
	Action    string
	Target    string
	Condition string
	program   *vm.Program
}

// Sequence is the parsed start sequence of the controller
type Sequence struct {
	steps   []Step
	skipped []string
}

// ParseSequence parses `action[:condition]` entries. Text after '#' is a comment.
// A single entry holding a comma separated list is split into entries.
// Entries with an unknown action are skipped and listed by Skipped; a malformed condition is an error.
func ParseSequence(entries []string) (*Sequence, error) {
	if len(entries) == 1 && !strings.HasPrefix(strings.TrimSpace(entries[0]), "#") && strings.Contains(entries[0], ",") {
		entries = strings.Split(entries[0], ",")
	}

	seq := &Sequence{}
	for _, entry := range entries {
		text := strings.TrimSpace(strings.SplitN(entry, "#", 2)[0])
		if text == "" {
			continue
		}

		action, condition := text, ""
		if i := strings.Index(text, ":"); i >= 0 {
			action, condition = strings.TrimSpace(text[:i]), strings.TrimSpace(text[i+1:])
		}

		m := actionPattern.FindStringSubmatch(action)
		if m == nil {
			seq.skipped = append(seq.skipped, text)
			continue
		}

		step := Step{Text: text, Action: m[1], Target: strings.ToUpper(m[2]), Condition: condition}
		if condition != "" {
			program, err := expr.Compile(rewriteCondition(condition), expr.Env(conditionEnv(nil)), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("invalid condition %q: %w", condition, err)
			}
			step.program = program
		}
		seq.steps = append(seq.steps, step)
	}
	return seq, nil
}

// rewriteCondition maps `"X" in P1` membership tests onto expr's string operator
func rewriteCondition(condition string) string {
	condition = notInPattern.ReplaceAllString(condition, `not ($2 contains "$1")`)
	return inPattern.ReplaceAllString(condition, `$2 contains "$1"`)
}

// conditionEnv exposes the channel states by name, e.g. P1
func conditionEnv(states map[string]string) map[string]interface{} {
	env := map[string]interface{}{}
	for _, name := range []string{"P1", "P2", "P3", "P4", "P5"} {
		env[name] = states[name]
	}
	return env
}

// Ready evaluates the step guard against the channel states. A step without guard is always ready.
func (s Step) Ready(states map[string]string) (bool, error) {
	if s.program == nil {
		return true, nil
	}
	out, err := expr.Run(s.program, conditionEnv(states))
	if err != nil {
		return false, err
	}
	ready, _ := out.(bool)
	return ready, nil
}

// Steps returns the parsed steps in order
func (s *Sequence) Steps() []Step {
	return s.steps
}

// Skipped returns the entries whose action is not a known gauge action
func (s *Sequence) Skipped() []string {
	return s.skipped
}

// Empty reports whether the sequence has no steps
func (s *Sequence) Empty() bool {
	return s == nil || len(s.steps) == 0
}

// String joins the cleaned entries, one per line
func (s *Sequence) String() string {
	lines := make([]string, 0, len(s.steps))
	for _, step := range s.steps {
		lines = append(lines, step.Text)
	}
	return strings.Join(lines, "\n")
}
