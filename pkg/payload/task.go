package payload

// Task types understood by the control plane.
const (
	TaskTypeDAG         = "DAG"
	TaskTypeMeta        = "META"
	TaskTypeExec        = "EXEC"
	TaskTypeSetVariable = "SET_VARIABLE"
	TaskTypeHTTP        = "HTTP"
	TaskTypeDelay       = "DELAY"
	TaskTypeCallRunbook = "CALL_RUNBOOK"
	TaskTypeDecision    = "DECISION"
	TaskTypeWhileLoop   = "WHILE_LOOP"
	TaskTypeInput       = "INPUT"
	TaskTypeConfirm     = "CONFIRM"
)

// Action types.
const (
	ActionSystem = "system"
	ActionUser   = "user"
)

// Action is an entity action and the runbook it executes.
type Action struct {
	UUID        string  `json:"uuid"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Critical    bool    `json:"critical"`
	Runbook     Runbook `json:"runbook"`
}

// Runbook is a task graph rooted at a DAG task.
type Runbook struct {
	UUID                   string     `json:"uuid"`
	Name                   string     `json:"name"`
	Description            string     `json:"description"`
	MainTaskLocalReference Reference  `json:"main_task_local_reference"`
	TaskDefinitionList     []Task     `json:"task_definition_list"`
	VariableList           []Variable `json:"variable_list"`
}

// Task returns the task with the given UUID.
func (r *Runbook) Task(uuid string) *Task {
	for i := range r.TaskDefinitionList {
		if r.TaskDefinitionList[i].UUID == uuid {
			return &r.TaskDefinitionList[i]
		}
	}
	return nil
}

// Task is a compiled task definition. Attrs holds one of the *Attrs types below.
type Task struct {
	UUID                         string      `json:"uuid"`
	Name                         string      `json:"name"`
	Description                  string      `json:"description"`
	Type                         string      `json:"type"`
	Attrs                        any         `json:"attrs"`
	ChildTasksLocalReferenceList []Reference `json:"child_tasks_local_reference_list"`
	TargetAnyLocalReference      *Reference  `json:"target_any_local_reference,omitempty"`
	VariableList                 []Variable  `json:"variable_list"`
	TimeoutSecs                  string      `json:"timeout_secs,omitempty"`
	Retries                      string      `json:"retries,omitempty"`
}

// Edge orders two children of a DAG task.
type Edge struct {
	FromTaskReference Reference `json:"from_task_reference"`
	ToTaskReference   Reference `json:"to_task_reference"`
}

// DAGAttrs holds the edges of a DAG task.
type DAGAttrs struct {
	Edges []Edge `json:"edges"`
}

// EmptyAttrs is used by tasks without attributes.
type EmptyAttrs struct{}

// ExecAttrs runs a script.
type ExecAttrs struct {
	ScriptType                    string     `json:"script_type"`
	Script                        string     `json:"script"`
	LoginCredentialLocalReference *Reference `json:"login_credential_local_reference,omitempty"`
}

// SetVariableAttrs runs a script whose output sets variables.
type SetVariableAttrs struct {
	ScriptType                    string     `json:"script_type"`
	Script                        string     `json:"script"`
	EvalVariables                 []string   `json:"eval_variables"`
	LoginCredentialLocalReference *Reference `json:"login_credential_local_reference,omitempty"`
}

// HTTPHeader is a single request header.
type HTTPHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HTTPAuth is the authentication of an HTTP task or endpoint.
type HTTPAuth struct {
	Type     string  `json:"type"`
	Username string  `json:"username,omitempty"`
	Password *Secret `json:"password,omitempty"`
}

// ResponseParam maps a status code to task success or failure.
type ResponseParam struct {
	Status string `json:"status"`
	Code   int    `json:"code"`
}

// HTTPAttrs describes an HTTP request.
type HTTPAttrs struct {
	URL                    string            `json:"url,omitempty"`
	RelativeURL            string            `json:"relative_url,omitempty"`
	Method                 string            `json:"method"`
	Headers                []HTTPHeader      `json:"headers"`
	RequestBody            string            `json:"request_body,omitempty"`
	ContentType            string            `json:"content_type"`
	ConnectionTimeout      int               `json:"connection_timeout"`
	TLSVerify              bool              `json:"tls_verify"`
	RetryCount             int               `json:"retry_count"`
	RetryInterval          int               `json:"retry_interval"`
	Authentication         HTTPAuth          `json:"authentication"`
	ExpectedResponseParams []ResponseParam   `json:"expected_response_params"`
	ResponsePaths          map[string]string `json:"response_paths,omitempty"`
}

// DelayAttrs pauses the runbook.
type DelayAttrs struct {
	IntervalSecs int `json:"interval_secs"`
}

// CallRunbookAttrs executes another runbook.
type CallRunbookAttrs struct {
	RunbookReference Reference `json:"runbook_reference"`
}

// DecisionAttrs runs a script and branches on its exit status.
type DecisionAttrs struct {
	ScriptType                    string     `json:"script_type"`
	Script                        string     `json:"script"`
	LoginCredentialLocalReference *Reference `json:"login_credential_local_reference,omitempty"`
	SuccessChildReference         Reference  `json:"success_child_reference"`
	FailureChildReference         Reference  `json:"failure_child_reference"`
}

// WhileLoopAttrs repeats the loop body.
type WhileLoopAttrs struct {
	Iterations        string `json:"iterations"`
	LoopVariable      string `json:"loop_variable"`
	ExitConditionType string `json:"exit_condition_type"`
}

// Input is an operator-supplied value.
type Input struct {
	Name      string   `json:"name"`
	InputType string   `json:"input_type"`
	Options   []string `json:"options"`
}

// InputAttrs pauses the runbook for operator input.
type InputAttrs struct {
	InputList []Input `json:"input_list"`
}
