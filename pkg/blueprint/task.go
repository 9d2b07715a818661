package blueprint

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// Task types.
const (
	TaskExec        = "exec"
	TaskSetVariable = "set_variable"
	TaskHTTP        = "http"
	TaskDelay       = "delay"
	TaskCall        = "call"
	TaskDecision    = "decision"
	TaskWhile       = "while"
	TaskInput       = "input"
	TaskConfirm     = "confirm"
)

// Script types.
const (
	ScriptShell      = "sh"
	ScriptEscript    = "escript"
	ScriptEscriptPy3 = "escript_py3"
	ScriptPowershell = "powershell"
)

// Step is either a single task or a parallel block of branches.
type Step struct {
	Task     `yaml:",inline"`
	Parallel []Branch `yaml:"parallel,omitempty" validate:"dive"`
}

// IsParallel reports whether the step is a parallel block.
func (s Step) IsParallel() bool {
	return len(s.Parallel) > 0
}

// Branch is one sequential lane of a parallel block. A bare task in place of
// a branch is a branch of that single task.
type Branch struct {
	Name  string `yaml:"name,omitempty"`
	Tasks []Step `yaml:"tasks" validate:"required,min=1,dive"`
}

// UnmarshalYAML accepts either {name, tasks} or a single task mapping.
func (b *Branch) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode && !hasKey(value, "tasks") {
		var st Step
		if err := decodeStrict(value, &st); err != nil {
			return err
		}
		*b = Branch{Tasks: []Step{st}}
		return nil
	}

	type plain Branch
	var p plain
	if err := decodeStrict(value, &p); err != nil {
		return err
	}
	*b = Branch(p)
	return nil
}

func hasKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

// decodeStrict decodes node into out rejecting unknown fields. Node.Decode
// does not inherit the strictness of the outer decoder.
func decodeStrict(node *yaml.Node, out any) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// Task is a single unit of work.
type Task struct {
	Name        string        `yaml:"name,omitempty"`
	Description string        `yaml:"description,omitempty"`
	Type        string        `yaml:"type,omitempty" validate:"omitempty,oneof=exec set_variable http delay call decision while input confirm"`
	ScriptType  string        `yaml:"script_type,omitempty" validate:"omitempty,oneof=sh escript escript_py3 powershell"`
	Script      string        `yaml:"script,omitempty"`
	Filename    string        `yaml:"filename,omitempty"`
	Cred        string        `yaml:"cred,omitempty"`
	Target      string        `yaml:"target,omitempty"`
	Variables   []string      `yaml:"variables,omitempty"`
	HTTP        *HTTPTask     `yaml:"http,omitempty"`
	Delay       int           `yaml:"delay_seconds,omitempty" validate:"gte=0"`
	Call        *CallTask     `yaml:"call,omitempty"`
	Decision    *DecisionTask `yaml:"decision,omitempty"`
	Loop        *LoopTask     `yaml:"loop,omitempty"`
	Inputs      []InputSpec   `yaml:"inputs,omitempty" validate:"dive"`
	TimeoutSecs int           `yaml:"timeout_secs,omitempty" validate:"gte=0"`
	Retries     int           `yaml:"retries,omitempty" validate:"gte=0"`
}

// Kind returns the effective task type, inferring it from the populated fields.
func (t Task) Kind() string {
	switch {
	case t.Type != "":
		return t.Type
	case t.HTTP != nil:
		return TaskHTTP
	case t.Call != nil:
		return TaskCall
	case t.Decision != nil:
		return TaskDecision
	case t.Loop != nil:
		return TaskWhile
	case len(t.Inputs) > 0:
		return TaskInput
	case t.Delay > 0:
		return TaskDelay
	case len(t.Variables) > 0:
		return TaskSetVariable
	default:
		return TaskExec
	}
}

// HTTPTask describes an HTTP request made by the control plane.
type HTTPTask struct {
	Method            string            `yaml:"method,omitempty" validate:"omitempty,oneof=GET POST PUT DELETE PATCH"`
	URL               string            `yaml:"url,omitempty"`
	RelativeURL       string            `yaml:"relative_url,omitempty"`
	Body              string            `yaml:"body,omitempty"`
	Headers           map[string]string `yaml:"headers,omitempty"`
	ContentType       string            `yaml:"content_type,omitempty"`
	Verify            bool              `yaml:"verify,omitempty"`
	Auth              *BasicAuth        `yaml:"auth,omitempty"`
	StatusMapping     map[int]bool      `yaml:"status_mapping,omitempty"`
	ResponsePaths     map[string]string `yaml:"response_paths,omitempty"`
	RetryCount        int               `yaml:"retry_count,omitempty" validate:"gte=0"`
	RetryInterval     int               `yaml:"retry_interval,omitempty" validate:"gte=0"`
	ConnectionTimeout int               `yaml:"connection_timeout,omitempty" validate:"gte=0"`
}

// BasicAuth is a username and password pair.
type BasicAuth struct {
	Username     string `yaml:"username" validate:"required"`
	Password     string `yaml:"password,omitempty"`
	PasswordFile string `yaml:"password_file,omitempty"`
}

// CallTask invokes another action or runbook.
type CallTask struct {
	Service string `yaml:"service,omitempty"`
	Action  string `yaml:"action,omitempty"`
	Runbook string `yaml:"runbook,omitempty"`
}

// DecisionTask runs one of two branches depending on a script's exit status.
type DecisionTask struct {
	Success []Step `yaml:"success,omitempty" validate:"dive"`
	Failure []Step `yaml:"failure,omitempty" validate:"dive"`
}

// LoopTask repeats its body.
type LoopTask struct {
	Iterations    string `yaml:"iterations" validate:"required"`
	Variable      string `yaml:"variable,omitempty"`
	ExitCondition string `yaml:"exit_condition,omitempty" validate:"omitempty,oneof=dont_care on_success on_failure"`
	Tasks         []Step `yaml:"tasks" validate:"required,min=1,dive"`
}

// InputSpec is a value requested from the operator while a runbook runs.
type InputSpec struct {
	Name    string   `yaml:"name" validate:"required"`
	Type    string   `yaml:"type,omitempty" validate:"omitempty,oneof=text select selectmultiple date time datetime password checkbox"`
	Options []string `yaml:"options,omitempty"`
}
