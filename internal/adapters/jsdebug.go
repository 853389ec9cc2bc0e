package adapters

import (
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/locator"
)

// jsDebugReadyMarker is printed by dapDebugServer.js once its server socket
// is accepting; connecting earlier gets refused.
const jsDebugReadyMarker = "Debug server listening"

// jsDebug is the Node.js adapter, built on vscode-js-debug's standalone DAP
// server. Cold starts are slow, hence the raised readiness timeout.
type jsDebug struct {
	base
}

func newJsDebug(client *http.Client, log logr.Logger) *jsDebug {
	desc := adapter.Descriptor{
		ID:        "js-debug",
		Name:      "JavaScript Debugger",
		Languages: []string{"javascript", "typescript"},
		Requests:  []adapter.RequestKind{adapter.RequestLaunch, adapter.RequestAttach},
		Readiness: adapter.Readiness{
			Mode:         adapter.CommsTCPConnect,
			StdoutMarker: jsDebugReadyMarker,
			Timeout:      15 * time.Second,
		},
	}
	cfg := locator.Config{
		AdapterID:    desc.ID,
		IndexURL:     indexURL(desc.ID),
		EntryRelPath: "src/dapDebugServer.js",
		Interpreter:  "node",
		Args:         []string{locator.EntryPlaceholder, adapter.PortPlaceholder, "127.0.0.1"},
	}
	return &jsDebug{base: newBase(desc, cfg, client, log)}
}

func (j *jsDebug) Validate(task adapter.TaskDefinition) error {
	return adapter.NewValidationError(j.desc.ID, validateCommon(j.desc, task))
}

func (j *jsDebug) Translate(task adapter.TaskDefinition) (adapter.LaunchRequestBody, error) {
	if err := j.Validate(task); err != nil {
		return nil, err
	}

	fields := map[string]any{
		"type": "pwa-node",
	}
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
			fields["processId"] = task.AttachPid
		} else {
			fields["address"] = task.Host
			fields["port"] = task.Port
		}
	}
	return buildBody(task, fields)
}
