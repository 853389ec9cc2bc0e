package adapters

import (
	"net/http"
	"strings"

	"github.com/go-logr/logr"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/locator"
)

// delve is the Go adapter. `dlv dap` runs its own DAP server on a TCP port,
// so the session launcher allocates one and dials it.
type delve struct {
	base
}

func newDelve(client *http.Client, log logr.Logger) *delve {
	desc := adapter.Descriptor{
		ID:        "delve",
		Name:      "Delve",
		Languages: []string{"go"},
		Requests:  []adapter.RequestKind{adapter.RequestLaunch, adapter.RequestAttach},
		Readiness: adapter.Readiness{Mode: adapter.CommsTCPConnect},
	}
	dapArgs := []string{"dap", "--listen=127.0.0.1:" + adapter.PortPlaceholder}
	cfg := locator.Config{
		AdapterID:      desc.ID,
		IndexURL:       indexURL(desc.ID),
		EntryRelPath:   "dlv",
		Args:           dapArgs,
		BinaryName:     "dlv",
		InstalledNames: []string{"dlv"},
		InstalledArgs:  dapArgs,
	}
	return &delve{base: newBase(desc, cfg, client, log)}
}

func (d *delve) Validate(task adapter.TaskDefinition) error {
	fields := validateCommon(d.desc, task)
	if task.EffectiveRequest() == adapter.RequestAttach && task.AttachPid <= 0 {
		// Remote attach targets connect to an already running `dlv dap`;
		// this adapter only attaches to local processes.
		fields = append(fields, adapter.FieldError{Field: "attachPid", Message: "is required for attach"})
	}
	return adapter.NewValidationError(d.desc.ID, fields)
}

func (d *delve) Translate(task adapter.TaskDefinition) (adapter.LaunchRequestBody, error) {
	if err := d.Validate(task); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	switch task.EffectiveRequest() {
	case adapter.RequestLaunch:
		// Source files and package directories are built by delve itself;
		// anything else is treated as a prebuilt binary.
		mode := "exec"
		if strings.HasSuffix(task.Program, ".go") {
			mode = "debug"
		}
		fields["mode"] = mode
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
		fields["mode"] = "local"
		fields["processId"] = task.AttachPid
	}
	return buildBody(task, fields)
}
