package adapters

import (
	"net/http"

	"github.com/go-logr/logr"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/locator"
)

// netcoredbg is the .NET adapter, built on Samsung's netcoredbg.
type netcoredbg struct {
	base
}

func newNetcoredbg(client *http.Client, log logr.Logger) *netcoredbg {
	desc := adapter.Descriptor{
		ID:        "netcoredbg",
		Name:      "NetCoreDbg",
		Languages: []string{"csharp", "fsharp"},
		Requests:  []adapter.RequestKind{adapter.RequestLaunch, adapter.RequestAttach},
		Readiness: adapter.Readiness{Mode: adapter.CommsStdio},
	}
	vscodeArgs := []string{"--interpreter=vscode"}
	cfg := locator.Config{
		AdapterID:      desc.ID,
		IndexURL:       indexURL(desc.ID),
		EntryRelPath:   "netcoredbg/netcoredbg",
		Args:           vscodeArgs,
		BinaryName:     "netcoredbg",
		InstalledNames: []string{"netcoredbg"},
		InstalledArgs:  vscodeArgs,
		SupportedPlatforms: []string{
			"linux-amd64", "linux-arm64",
			"darwin-amd64", "darwin-arm64",
			"windows-amd64",
		},
	}
	return &netcoredbg{base: newBase(desc, cfg, client, log)}
}

func (n *netcoredbg) Validate(task adapter.TaskDefinition) error {
	fields := validateCommon(n.desc, task)
	if task.EffectiveRequest() == adapter.RequestAttach && task.AttachPid <= 0 {
		fields = append(fields, adapter.FieldError{Field: "attachPid", Message: "is required for attach"})
	}
	return adapter.NewValidationError(n.desc.ID, fields)
}

func (n *netcoredbg) Translate(task adapter.TaskDefinition) (adapter.LaunchRequestBody, error) {
	if err := n.Validate(task); err != nil {
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
			fields["stopAtEntry"] = true
		}
	case adapter.RequestAttach:
		fields["processId"] = task.AttachPid
	}
	return buildBody(task, fields)
}
