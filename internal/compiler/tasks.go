package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"calmdsl/pkg/blueprint"
	"calmdsl/pkg/payload"
)

const (
	httpDefaultTimeout       = 120
	httpDefaultRetryCount    = 1
	httpDefaultRetryInterval = 1
)

// graph compiles the steps of one runbook into a flat task list rooted at a DAG task.
type graph struct {
	s    *session
	loc  string
	path string

	tasks []payload.Task
	names map[string]bool
	auto  int

	// target is the default target of tasks without an explicit one.
	target *payload.Reference
	// service is the service whose actions unqualified calls refer to.
	service string
	// resolveTarget resolves explicit task targets.
	resolveTarget func(name string) (payload.Reference, error)
}

func (s *session) newGraph(loc, path string, target *payload.Reference) *graph {
	return &graph{
		s:             s,
		loc:           loc,
		path:          path,
		names:         make(map[string]bool),
		target:        target,
		resolveTarget: s.blueprintTarget,
	}
}

// blueprintTarget resolves a task target inside a blueprint: a service or a substrate.
func (s *session) blueprintTarget(name string) (payload.Reference, error) {
	if s.substrates.has(name) && !s.services.has(name) {
		return s.substrates.ref(name)
	}
	return s.services.ref(name)
}

func taskRef(t payload.Task) payload.Reference {
	return payload.Reference{Kind: payload.KindAppTask, Name: t.Name, UUID: t.UUID}
}

// runbook compiles steps into a runbook with the given UUID and name.
func (g *graph) runbook(id, name string, steps []blueprint.Step, vars []payload.Variable) payload.Runbook {
	if vars == nil {
		vars = []payload.Variable{}
	}
	dag := g.dag(name+"_dag", steps)
	return payload.Runbook{
		UUID:                   id,
		Name:                   name,
		MainTaskLocalReference: taskRef(dag),
		TaskDefinitionList:     append([]payload.Task{dag}, g.tasks...),
		VariableList:           vars,
	}
}

// dag compiles steps as the children of a new DAG task. Children are appended
// to g.tasks; the DAG task itself is returned for the caller to place.
func (g *graph) dag(name string, steps []blueprint.Step) payload.Task {
	g.claim(name)
	id := g.s.id(g.path, "task", name)
	children, _, _, edges := g.steps(steps)
	return payload.Task{
		UUID:                         id,
		Name:                         name,
		Type:                         payload.TaskTypeDAG,
		Attrs:                        payload.DAGAttrs{Edges: edges},
		ChildTasksLocalReferenceList: children,
		TargetAnyLocalReference:      g.target,
		VariableList:                 []payload.Variable{},
	}
}

// steps compiles a sequence. It returns every task created at this DAG level,
// the heads and tails of the sequence and the edges linking them.
func (g *graph) steps(steps []blueprint.Step) (children, heads, tails []payload.Reference, edges []payload.Edge) {
	children = []payload.Reference{}
	edges = []payload.Edge{}

	for _, st := range steps {
		var curHeads, curTails []payload.Reference

		if st.IsParallel() {
			if st.Name != "" || st.Kind() != blueprint.TaskExec || st.Script != "" || st.Filename != "" {
				g.s.failf(g.loc, "a parallel step cannot also define a task")
			}
			for _, br := range st.Parallel {
				c, h, t, e := g.steps(br.Tasks)
				children = append(children, c...)
				edges = append(edges, e...)
				curHeads = append(curHeads, h...)
				curTails = append(curTails, t...)
			}
		} else {
			ref := g.task(st.Task)
			children = append(children, ref)
			curHeads = []payload.Reference{ref}
			curTails = []payload.Reference{ref}
		}

		if len(curHeads) == 0 {
			continue
		}
		for _, from := range tails {
			for _, to := range curHeads {
				edges = append(edges, payload.Edge{FromTaskReference: from, ToTaskReference: to})
			}
		}
		if heads == nil {
			heads = curHeads
		}
		tails = curTails
	}
	return children, heads, tails, edges
}

func (g *graph) claim(name string) {
	if g.names[name] {
		g.s.failf(g.loc, "duplicate task name %q", name)
	}
	g.names[name] = true
}

func (g *graph) taskName(name string) string {
	if name != "" {
		return name
	}
	for {
		g.auto++
		candidate := fmt.Sprintf("Task%d", g.auto)
		if !g.names[candidate] {
			return candidate
		}
	}
}

// reserve appends a placeholder so a task precedes its children in the list.
func (g *graph) reserve() int {
	g.tasks = append(g.tasks, payload.Task{})
	return len(g.tasks) - 1
}

// task compiles a single task and returns its reference.
func (g *graph) task(t blueprint.Task) payload.Reference {
	name := g.taskName(t.Name)
	g.claim(name)
	at := g.loc + ": " + locate("task", name)

	task := payload.Task{
		UUID:                         g.s.id(g.path, "task", name),
		Name:                         name,
		Description:                  t.Description,
		ChildTasksLocalReferenceList: []payload.Reference{},
		VariableList:                 []payload.Variable{},
		TargetAnyLocalReference:      g.target,
	}
	if t.TimeoutSecs > 0 {
		task.TimeoutSecs = strconv.Itoa(t.TimeoutSecs)
	}
	if t.Retries > 0 {
		task.Retries = strconv.Itoa(t.Retries)
	}
	if t.Target != "" {
		ref, err := g.resolveTarget(t.Target)
		if err != nil {
			g.s.fail(at+": target", err)
		} else {
			task.TargetAnyLocalReference = &ref
		}
	}

	idx := g.reserve()

	switch kind := t.Kind(); kind {
	case blueprint.TaskExec:
		scriptType, script := g.script(at, t)
		task.Type = payload.TaskTypeExec
		task.Attrs = payload.ExecAttrs{
			ScriptType:                    scriptType,
			Script:                        script,
			LoginCredentialLocalReference: g.loginCred(at, t),
		}
	case blueprint.TaskSetVariable:
		scriptType, script := g.script(at, t)
		if len(t.Variables) == 0 {
			g.s.failf(at, "set_variable task needs at least one variable")
		}
		task.Type = payload.TaskTypeSetVariable
		task.Attrs = payload.SetVariableAttrs{
			ScriptType:                    scriptType,
			Script:                        script,
			EvalVariables:                 t.Variables,
			LoginCredentialLocalReference: g.loginCred(at, t),
		}
	case blueprint.TaskHTTP:
		task.Type = payload.TaskTypeHTTP
		task.Attrs = g.http(at, t.HTTP, task.TargetAnyLocalReference)
	case blueprint.TaskDelay:
		if t.Delay <= 0 {
			g.s.failf(at, "delay task needs delay_seconds greater than 0")
		}
		task.Type = payload.TaskTypeDelay
		task.Attrs = payload.DelayAttrs{IntervalSecs: t.Delay}
	case blueprint.TaskCall:
		task.Type = payload.TaskTypeCallRunbook
		attrs, target := g.call(at, t.Call)
		task.Attrs = attrs
		if target != nil {
			task.TargetAnyLocalReference = target
		}
	case blueprint.TaskDecision:
		scriptType, script := g.script(at, t)
		d := t.Decision
		if d == nil {
			d = &blueprint.DecisionTask{}
		}
		success := g.meta(name+"_success", d.Success)
		failure := g.meta(name+"_failure", d.Failure)
		task.Type = payload.TaskTypeDecision
		task.Attrs = payload.DecisionAttrs{
			ScriptType:                    scriptType,
			Script:                        script,
			LoginCredentialLocalReference: g.loginCred(at, t),
			SuccessChildReference:         success,
			FailureChildReference:         failure,
		}
		task.ChildTasksLocalReferenceList = []payload.Reference{success, failure}
	case blueprint.TaskWhile:
		l := t.Loop
		if l == nil {
			g.s.failf(at, "while task needs a loop block")
			l = &blueprint.LoopTask{}
		}
		loopVar := l.Variable
		if loopVar == "" {
			loopVar = "iteration"
		}
		exit := l.ExitCondition
		if exit == "" {
			exit = "dont_care"
		}
		g.s.checkMacros(at, l.Iterations)
		body := g.meta(name+"_loop", l.Tasks)
		task.Type = payload.TaskTypeWhileLoop
		task.Attrs = payload.WhileLoopAttrs{
			Iterations:        l.Iterations,
			LoopVariable:      loopVar,
			ExitConditionType: exit,
		}
		task.ChildTasksLocalReferenceList = []payload.Reference{body}
	case blueprint.TaskInput:
		inputs := make([]payload.Input, 0, len(t.Inputs))
		for _, in := range t.Inputs {
			inType := in.Type
			if inType == "" {
				inType = "text"
			}
			options := in.Options
			if options == nil {
				options = []string{}
			}
			inputs = append(inputs, payload.Input{Name: in.Name, InputType: inType, Options: options})
		}
		task.Type = payload.TaskTypeInput
		task.Attrs = payload.InputAttrs{InputList: inputs}
	case blueprint.TaskConfirm:
		task.Type = payload.TaskTypeConfirm
		task.Attrs = payload.EmptyAttrs{}
	default:
		g.s.failf(at, "unsupported task type %q", kind)
	}

	g.tasks[idx] = task
	return taskRef(task)
}

// meta compiles a branch body as a META task holding a nested DAG.
func (g *graph) meta(name string, steps []blueprint.Step) payload.Reference {
	g.claim(name)
	meta := payload.Task{
		UUID:                    g.s.id(g.path, "task", name),
		Name:                    name,
		Type:                    payload.TaskTypeMeta,
		Attrs:                   payload.EmptyAttrs{},
		TargetAnyLocalReference: g.target,
		VariableList:            []payload.Variable{},
	}
	metaIdx := g.reserve()
	dagIdx := g.reserve()

	dag := g.dag(name+"_dag", steps)
	g.tasks[dagIdx] = dag
	meta.ChildTasksLocalReferenceList = []payload.Reference{taskRef(dag)}
	g.tasks[metaIdx] = meta
	return taskRef(meta)
}

func (g *graph) script(at string, t blueprint.Task) (string, string) {
	scriptType := t.ScriptType
	if scriptType == "" {
		scriptType = blueprint.ScriptShell
	}

	var script string
	switch {
	case t.Script != "" && t.Filename != "":
		g.s.failf(at, "script and filename are mutually exclusive")
	case t.Filename != "":
		script = g.s.readFile(at, t.Filename)
	case t.Script != "":
		script = t.Script
	default:
		g.s.failf(at, "needs a script or a filename")
	}

	g.s.checkMacros(at, script)
	return scriptType, script
}

func (g *graph) loginCred(at string, t blueprint.Task) *payload.Reference {
	return g.s.credRef(at+": cred", t.Cred)
}

func (g *graph) http(at string, h *blueprint.HTTPTask, target *payload.Reference) payload.HTTPAttrs {
	if h == nil {
		g.s.failf(at, "http task needs an http block")
		h = &blueprint.HTTPTask{}
	}

	attrs := payload.HTTPAttrs{
		URL:                    h.URL,
		RelativeURL:            h.RelativeURL,
		Method:                 h.Method,
		Headers:                []payload.HTTPHeader{},
		RequestBody:            h.Body,
		ContentType:            h.ContentType,
		ConnectionTimeout:      h.ConnectionTimeout,
		TLSVerify:              h.Verify,
		RetryCount:             h.RetryCount,
		RetryInterval:          h.RetryInterval,
		Authentication:         payload.HTTPAuth{Type: "none"},
		ExpectedResponseParams: []payload.ResponseParam{},
		ResponsePaths:          h.ResponsePaths,
	}
	if attrs.Method == "" {
		attrs.Method = "GET"
	}
	if attrs.ContentType == "" {
		attrs.ContentType = "application/json"
	}
	if attrs.ConnectionTimeout == 0 {
		attrs.ConnectionTimeout = httpDefaultTimeout
	}
	if attrs.RetryCount == 0 {
		attrs.RetryCount = httpDefaultRetryCount
	}
	if attrs.RetryInterval == 0 {
		attrs.RetryInterval = httpDefaultRetryInterval
	}

	onEndpoint := target != nil && target.Kind == payload.KindAppEndpoint
	switch {
	case h.URL != "" && h.RelativeURL != "":
		g.s.failf(at, "url and relative_url are mutually exclusive")
	case h.URL == "" && !onEndpoint:
		g.s.failf(at, "http task needs a url, or a relative_url with an endpoint target")
	}

	for _, k := range sortedKeys(h.Headers) {
		attrs.Headers = append(attrs.Headers, payload.HTTPHeader{Name: k, Value: h.Headers[k]})
		g.s.checkMacros(at, h.Headers[k])
	}

	codes := make([]int, 0, len(h.StatusMapping))
	for code := range h.StatusMapping {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		status := "FAILURE"
		if h.StatusMapping[code] {
			status = "SUCCESS"
		}
		attrs.ExpectedResponseParams = append(attrs.ExpectedResponseParams, payload.ResponseParam{Status: status, Code: code})
	}

	if h.Auth != nil {
		password := h.Auth.Password
		if h.Auth.PasswordFile != "" {
			password = g.s.readLocalFile(at, h.Auth.PasswordFile)
		}
		attrs.Authentication = payload.HTTPAuth{
			Type:     "basic",
			Username: h.Auth.Username,
			Password: &payload.Secret{Value: password, Attrs: payload.SecretAttr{IsSecretModified: true}},
		}
	}

	g.s.checkMacros(at, h.URL, h.RelativeURL, h.Body)
	return attrs
}

func (g *graph) call(at string, c *blueprint.CallTask) (payload.CallRunbookAttrs, *payload.Reference) {
	if c == nil {
		g.s.failf(at, "call task needs a call block")
		return payload.CallRunbookAttrs{}, nil
	}

	if c.Runbook != "" {
		if c.Action != "" || c.Service != "" {
			g.s.failf(at, "call takes either a runbook or a service action")
		}
		ref := g.s.platformRef(at, Query{Kind: payload.KindRunbook, Name: c.Runbook})
		if ref == nil {
			return payload.CallRunbookAttrs{}, nil
		}
		return payload.CallRunbookAttrs{RunbookReference: *ref}, nil
	}

	svc := c.Service
	if svc == "" {
		svc = g.service
	}
	if svc == "" {
		g.s.failf(at, "call needs a service outside of service actions")
		return payload.CallRunbookAttrs{}, nil
	}
	svcRef, err := g.s.services.ref(svc)
	if err != nil {
		g.s.fail(at+": call", err)
		return payload.CallRunbookAttrs{}, nil
	}

	owner := "service/" + svc
	rb, ok := g.s.runbooks[owner+"/"+c.Action]
	if !ok {
		g.s.fail(at+": call", &RefError{
			Kind:       "action",
			Name:       c.Action,
			Suggestion: suggest(c.Action, g.s.actionNames[owner]),
		})
		return payload.CallRunbookAttrs{}, nil
	}
	return payload.CallRunbookAttrs{RunbookReference: rb}, &svcRef
}

// declareOutputs records the variables produced by tasks so macros using them resolve.
func (s *session) declareOutputs(steps []blueprint.Step) {
	for _, st := range steps {
		for _, br := range st.Parallel {
			s.declareOutputs(br.Tasks)
		}
		t := st.Task
		s.declare(t.Variables...)
		if t.HTTP != nil {
			s.declare(sortedKeys(t.HTTP.ResponsePaths)...)
		}
		for _, in := range t.Inputs {
			s.declare(in.Name)
		}
		if t.Decision != nil {
			s.declareOutputs(t.Decision.Success)
			s.declareOutputs(t.Decision.Failure)
		}
		if t.Loop != nil {
			s.declare(t.Loop.Variable)
			s.declareOutputs(t.Loop.Tasks)
		}
	}
}

// registerActions allocates runbook references for the actions of an owner
// so calls can refer to actions compiled later.
func (s *session) registerActions(owner string, actions []blueprint.Action) {
	for _, a := range actions {
		key := owner + "/" + a.Name
		if _, ok := s.runbooks[key]; ok {
			s.failf(strings.ReplaceAll(owner, "/", " "), "duplicate action name %q", a.Name)
			continue
		}
		s.runbooks[key] = payload.Reference{
			Kind: payload.KindAppRunbook,
			Name: runbookName(owner, a.Name),
			UUID: s.id(owner, "action", a.Name, "runbook"),
		}
		s.actionNames[owner] = append(s.actionNames[owner], a.Name)
		s.declareOutputs(a.Tasks)
	}
}

func runbookName(owner, action string) string {
	return strings.ReplaceAll(owner, "/", "_") + "_" + strings.Trim(action, "_") + "_runbook"
}

// compileAction compiles an action. name and actionType are the compiled
// action name and type.
func (s *session) compileAction(loc, owner string, a blueprint.Action, name, actionType string, target *payload.Reference, service string) payload.Action {
	return payload.Action{
		UUID:        s.id(owner, "action", a.Name),
		Name:        name,
		Description: a.Description,
		Type:        actionType,
		Critical:    actionType == payload.ActionSystem,
		Runbook:     s.actionRunbook(loc, owner, a, target, service),
	}
}

// actionRunbook compiles the runbook behind an action.
func (s *session) actionRunbook(loc, owner string, a blueprint.Action, target *payload.Reference, service string) payload.Runbook {
	at := loc + ": " + locate("action", a.Name)
	rbRef, ok := s.runbooks[owner+"/"+a.Name]
	if !ok {
		rbRef = payload.Reference{
			Kind: payload.KindAppRunbook,
			Name: runbookName(owner, a.Name),
			UUID: s.id(owner, "action", a.Name, "runbook"),
		}
	}

	g := s.newGraph(at, owner+"/action/"+a.Name, target)
	g.service = service
	return g.runbook(rbRef.UUID, rbRef.Name, a.Tasks, nil)
}

func isSystemAction(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}
