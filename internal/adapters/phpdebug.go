package adapters

import (
	"net/http"

	"github.com/go-logr/logr"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/locator"
)

// defaultXdebugPort is Xdebug's default debugging port.
const defaultXdebugPort = 9003

// phpDebug is the PHP adapter, wrapping vscode-php-debug's phpDebug.js. The
// adapter speaks DAP on stdio and itself waits for Xdebug connections from
// the PHP runtime.
type phpDebug struct {
	base
}

func newPhpDebug(client *http.Client, log logr.Logger) *phpDebug {
	desc := adapter.Descriptor{
		ID:        "php-debug",
		Name:      "PHP Debug",
		Languages: []string{"php"},
		Requests:  []adapter.RequestKind{adapter.RequestLaunch},
		Readiness: adapter.Readiness{Mode: adapter.CommsStdio},
	}
	cfg := locator.Config{
		AdapterID:    desc.ID,
		IndexURL:     indexURL(desc.ID),
		EntryRelPath: "out/phpDebug.js",
		Interpreter:  "node",
		Args:         []string{locator.EntryPlaceholder},
	}
	return &phpDebug{base: newBase(desc, cfg, client, log)}
}

func (p *phpDebug) Validate(task adapter.TaskDefinition) error {
	return adapter.NewValidationError(p.desc.ID, validateCommon(p.desc, task))
}

func (p *phpDebug) Translate(task adapter.TaskDefinition) (adapter.LaunchRequestBody, error) {
	if err := p.Validate(task); err != nil {
		return nil, err
	}

	port := task.Port
	if port == 0 {
		port = defaultXdebugPort
	}
	fields := map[string]any{
		"program": task.Program,
		"cwd":     effectiveCwd(task),
		"port":    port,
	}
	if len(task.Args) > 0 {
		fields["args"] = task.Args
	}
	if len(task.Env) > 0 {
		fields["env"] = task.Env
	}
	if task.StopOnEntry {
		fields["stopOnEntry"] = true
	}
	return buildBody(task, fields)
}
