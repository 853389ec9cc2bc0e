package adapters

import (
	"net/http"

	"github.com/go-logr/logr"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/locator"
)

// debugpy is the Python adapter. The provisioned artifact is the debugpy
// release layout; the adapter itself is started as `python -m debugpy.adapter`
// with PYTHONPATH pointing into the cache slot.
type debugpy struct {
	base
}

func newDebugpy(client *http.Client, log logr.Logger) *debugpy {
	desc := adapter.Descriptor{
		ID:        "debugpy",
		Name:      "Debugpy",
		Languages: []string{"python"},
		Requests:  []adapter.RequestKind{adapter.RequestLaunch, adapter.RequestAttach},
		Readiness: adapter.Readiness{Mode: adapter.CommsStdio},
	}
	cfg := locator.Config{
		AdapterID:    desc.ID,
		IndexURL:     indexURL(desc.ID),
		EntryRelPath: "src/debugpy/adapter/__main__.py",
		Interpreter:  "python3",
		Args:         []string{"-m", "debugpy.adapter"},
		Env: map[string]string{
			"PYTHONPATH": locator.InstallPlaceholder + "/src",
		},
	}
	return &debugpy{base: newBase(desc, cfg, client, log)}
}

func (d *debugpy) Validate(task adapter.TaskDefinition) error {
	return adapter.NewValidationError(d.desc.ID, validateCommon(d.desc, task))
}

func (d *debugpy) Translate(task adapter.TaskDefinition) (adapter.LaunchRequestBody, error) {
	if err := d.Validate(task); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	switch task.EffectiveRequest() {
	case adapter.RequestLaunch:
		fields["program"] = task.Program
		fields["cwd"] = effectiveCwd(task)
		fields["justMyCode"] = true
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
			fields["processId"] = task.AttachPid
		} else {
			fields["connect"] = map[string]any{"host": task.Host, "port": task.Port}
		}
	}
	return buildBody(task, fields)
}
