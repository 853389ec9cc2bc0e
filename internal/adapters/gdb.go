package adapters

import (
	"github.com/go-logr/logr"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/locator"
)

// gdb is the GDB adapter. GDB 14+ has a built-in DAP interpreter; there is no
// downloadable artifact, the system toolchain is the only source. Not
// registered on Windows.
type gdb struct {
	base
}

func newGdb(log logr.Logger) *gdb {
	desc := adapter.Descriptor{
		ID:        "gdb",
		Name:      "GDB",
		Languages: []string{"c", "cpp", "rust", "ada", "fortran"},
		Requests:  []adapter.RequestKind{adapter.RequestLaunch, adapter.RequestAttach},
		Readiness: adapter.Readiness{Mode: adapter.CommsStdio},
	}
	cfg := locator.Config{
		AdapterID:      desc.ID,
		InstalledNames: []string{"gdb"},
		InstalledArgs:  []string{"-i", "dap"},
		SupportedPlatforms: []string{
			"linux-amd64", "linux-arm64", "linux-386",
			"darwin-amd64", "darwin-arm64",
			"freebsd-amd64",
		},
	}
	return &gdb{base: newBase(desc, cfg, nil, log)}
}

func (g *gdb) Validate(task adapter.TaskDefinition) error {
	return adapter.NewValidationError(g.desc.ID, validateCommon(g.desc, task))
}

func (g *gdb) Translate(task adapter.TaskDefinition) (adapter.LaunchRequestBody, error) {
	if err := g.Validate(task); err != nil {
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
			fields["stopAtBeginningOfMainSubprogram"] = true
		}
	case adapter.RequestAttach:
		fields["pid"] = task.AttachPid
	}
	return buildBody(task, fields)
}
