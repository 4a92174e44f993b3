package rules

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/traceflow/traceflow/internal/model"
	"github.com/traceflow/traceflow/pkg/errors"
)

// ruleFile is the YAML shape of a user-supplied rule file.
//
//	rules:
//	  - parent: KernelLaunch
//	    child: KernelExecute
//	    parent_stats: [correlation_id]
//	    child_stats: [correlation_id]
//	roots: [SessionRun, FunctionRun]
type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
	Roots []string    `yaml:"roots"`
}

type ruleEntry struct {
	Parent      string   `yaml:"parent"`
	Child       string   `yaml:"child"`
	ParentStats []string `yaml:"parent_stats"`
	ChildStats  []string `yaml:"child_stats"`
}

// LoadFile reads connect rules and root event types from a YAML file.
// The returned roots slice is nil when the file does not override roots.
func LoadFile(path string) ([]ConnectRule, []model.EventType, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.FileNotFound(path)
		}
		return nil, nil, errors.Wrap(err, errors.CodeFilePermission, "cannot open rules file")
	}
	defer f.Close()
	return Load(f)
}

// Load parses connect rules from YAML.
func Load(r io.Reader) ([]ConnectRule, []model.EventType, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeEncodingError, "cannot read rules")
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInvalidFormat, "cannot parse rules yaml")
	}

	out := make([]ConnectRule, 0, len(rf.Rules))
	for i, e := range rf.Rules {
		rule, err := e.toRule()
		if err != nil {
			return nil, nil, errors.InvalidRule(i, err.Error())
		}
		out = append(out, rule)
	}

	var roots []model.EventType
	for _, name := range rf.Roots {
		t, ok := model.ParseEventType(name)
		if !ok {
			return nil, nil, errors.New(errors.CodeInvalidFormat, "unknown root event type").
				WithContext("name", name)
		}
		roots = append(roots, t)
	}

	return out, roots, nil
}

func (e ruleEntry) toRule() (ConnectRule, error) {
	parent, ok := model.ParseEventType(e.Parent)
	if !ok {
		return ConnectRule{}, fmt.Errorf("unknown parent event type %q", e.Parent)
	}
	child, ok := model.ParseEventType(e.Child)
	if !ok {
		return ConnectRule{}, fmt.Errorf("unknown child event type %q", e.Child)
	}
	if len(e.ParentStats) == 0 || len(e.ParentStats) != len(e.ChildStats) {
		return ConnectRule{}, fmt.Errorf("parent_stats and child_stats must be non-empty and equal length")
	}

	rule := ConnectRule{ParentType: parent, ChildType: child}
	for _, name := range e.ParentStats {
		t, ok := model.ParseStatType(name)
		if !ok {
			return ConnectRule{}, fmt.Errorf("unknown parent stat type %q", name)
		}
		rule.ParentStats = append(rule.ParentStats, t)
	}
	for _, name := range e.ChildStats {
		t, ok := model.ParseStatType(name)
		if !ok {
			return ConnectRule{}, fmt.Errorf("unknown child stat type %q", name)
		}
		rule.ChildStats = append(rule.ChildStats, t)
	}
	return rule, nil
}
