package app

import (
	"strings"
	"testing"

	"calmdsl/internal/compiler"
	"calmdsl/internal/localfile"
	"calmdsl/internal/parser"
	"calmdsl/pkg/payload"
)

func TestBuildStages_Order(t *testing.T) {
	stages := buildStages(&workflow{})

	want := []string{StageCompile, StageArchive, StagePublish, StageUpload, StageLaunch}
	if len(stages) != len(want) {
		t.Fatalf("buildStages() returned %d stages, want %d", len(stages), len(want))
	}
	for i, stage := range stages {
		if stage.Name() != want[i] {
			t.Errorf("stage %d = %q, want %q", i, stage.Name(), want[i])
		}
		if stageIndex(stage.Name()) != i {
			t.Errorf("stage %q is out of order", stage.Name())
		}
	}
}

func TestWorkflow_ArchiveDir(t *testing.T) {
	w := &workflow{opts: Options{Path: "projects/web/blueprint.yaml"}}
	if got := w.archiveDir(); got != "blueprint" {
		t.Errorf("archiveDir() = %q, want %q", got, "blueprint")
	}
}

const multiDocDSL = `apiVersion: v1
kind: Endpoint
metadata:
  name: db_host
spec:
  type: Linux
  values: [10.0.0.5]
  credentials:
    - name: ssh
      username: root
      secret: pw
---
apiVersion: v1
kind: Runbook
metadata:
  name: backup
spec:
  endpoints: [db_host]
  default_target: db_host
  tasks:
    - name: Dump
      type: exec
      script: pg_dumpall > /tmp/all.sql
`

func TestCompileBundle_OrderAndHash(t *testing.T) {
	bundle, err := parser.ParseBytes([]byte(multiDocDSL))
	if err != nil {
		t.Fatalf("ParseBytes() error: %v", err)
	}

	compile := func() []Document {
		t.Helper()
		c := compiler.New(compiler.Options{Deterministic: true, Files: localfile.NewReader(nil, t.TempDir(), "")})
		docs, err := CompileBundle(c, bundle)
		if err != nil {
			t.Fatalf("CompileBundle() error: %v", err)
		}
		return docs
	}

	docs := compile()
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].Key() != "endpoint/db_host" || docs[1].Key() != "runbook/backup" {
		t.Errorf("documents out of upload order: %s, %s", docs[0].Key(), docs[1].Key())
	}
	if got := docs[1].Compiled().FileName(); got != "runbook_backup.json" {
		t.Errorf("FileName() = %q", got)
	}
	if firstOfKind(docs, payload.KindBlueprint) != nil {
		t.Error("firstOfKind() found a blueprint in a runbook file")
	}
	if rb := firstOfKind(docs, payload.KindRunbook); rb == nil || rb.Name != "backup" {
		t.Errorf("firstOfKind(runbook) = %v", rb)
	}

	first, err := payloadHash(docs)
	if err != nil {
		t.Fatalf("payloadHash() error: %v", err)
	}
	second, err := payloadHash(compile())
	if err != nil {
		t.Fatalf("payloadHash() error: %v", err)
	}
	if first != second {
		t.Errorf("deterministic compiles hashed differently: %s != %s", first, second)
	}
	if len(first) != 16 {
		t.Errorf("hash %q should be 16 hex digits", first)
	}
}

func TestCompileBundle_ReportsAllErrors(t *testing.T) {
	bundle, err := parser.ParseBytes([]byte(`apiVersion: v1
kind: Runbook
metadata:
  name: first
spec:
  default_target: nowhere
  tasks:
    - name: Run
      type: exec
      script: echo 1
---
apiVersion: v1
kind: Runbook
metadata:
  name: second
spec:
  default_target: elsewhere
  tasks:
    - name: Run
      type: exec
      script: echo 2
`))
	if err != nil {
		t.Fatalf("ParseBytes() error: %v", err)
	}

	c := compiler.New(compiler.Options{Deterministic: true})
	docs, err := CompileBundle(c, bundle)
	if err == nil {
		t.Fatal("expected compile errors")
	}
	if docs != nil {
		t.Errorf("expected no documents on error, got %d", len(docs))
	}
	for _, name := range []string{`"first"`, `"second"`} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should mention runbook %s:\n%v", name, err)
		}
	}
}
