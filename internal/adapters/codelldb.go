package adapters

import (
	"net/http"

	"github.com/go-logr/logr"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/locator"
)

// codelldb is the native-code adapter (C, C++, Rust). Its release artifacts
// are platform specific vsix-style archives with the adapter binary under
// extension/adapter.
type codelldb struct {
	base
}

func newCodelldb(client *http.Client, log logr.Logger) *codelldb {
	desc := adapter.Descriptor{
		ID:        "codelldb",
		Name:      "CodeLLDB",
		Languages: []string{"c", "cpp", "rust"},
		Requests:  []adapter.RequestKind{adapter.RequestLaunch, adapter.RequestAttach},
		Readiness: adapter.Readiness{Mode: adapter.CommsTCPConnect},
	}
	cfg := locator.Config{
		AdapterID:    desc.ID,
		IndexURL:     indexURL(desc.ID),
		EntryRelPath: "extension/adapter/codelldb",
		Args:         []string{"--port", adapter.PortPlaceholder},
		SupportedPlatforms: []string{
			"linux-amd64", "linux-arm64",
			"darwin-amd64", "darwin-arm64",
			"windows-amd64",
		},
	}
	return &codelldb{base: newBase(desc, cfg, client, log)}
}

func (c *codelldb) Validate(task adapter.TaskDefinition) error {
	return adapter.NewValidationError(c.desc.ID, validateCommon(c.desc, task))
}

func (c *codelldb) Translate(task adapter.TaskDefinition) (adapter.LaunchRequestBody, error) {
	if err := c.Validate(task); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	switch task.EffectiveRequest() {
	case adapter.RequestLaunch:
		fields["program"] = task.Program
		fields["cwd"] = effectiveCwd(task)
		if len(task.Args) > 0 {
			fields["args"] = task.Args
		}
		if len(task.Env) > 0 {
			fields["env"] = task.Env
		}
		if task.StopOnEntry {
			fields["stopOnEntry"] = true
		}
	case adapter.RequestAttach:
		if task.AttachPid > 0 {
			fields["pid"] = task.AttachPid
		} else {
			fields["program"] = task.Program
		}
	}
	return buildBody(task, fields)
}
