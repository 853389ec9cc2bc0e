// Package adapters is the concrete debug adapter catalog: one file per
// supported debugger, each combining a descriptor, a binary locator
// configuration and a configuration translator.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/locator"
	"github.com/ashpool37/dapbridge/pkg/osutil"
)

// releaseHost is where dapbridge-curated adapter release indexes live.
const releaseHost = "https://releases.dapbridge.dev"

func indexURL(id adapter.ID) string {
	return fmt.Sprintf("%s/%s/index.json", releaseHost, id)
}

// All returns the full adapter catalog for this platform.
func All(client *http.Client, log logr.Logger) []adapter.Adapter {
	catalog := []adapter.Adapter{
		newDebugpy(client, log),
		newDelve(client, log),
		newCodelldb(client, log),
		newJsDebug(client, log),
		newPhpDebug(client, log),
		newNetcoredbg(client, log),
	}
	if !osutil.IsWindows() {
		catalog = append(catalog, newGdb(log))
	}
	return catalog
}

// RegisterAll populates the registry with the adapter catalog.
func RegisterAll(registry *adapter.Registry, client *http.Client, log logr.Logger) error {
	for _, impl := range All(client, log) {
		if err := registry.Register(impl); err != nil {
			return err
		}
	}
	return nil
}

// base carries what every catalog adapter shares: the descriptor and a
// locator. Binary resolution is fully delegated to the locator; Validate and
// Translate stay with the concrete adapter.
type base struct {
	desc adapter.Descriptor
	loc  *locator.Locator
}

func newBase(desc adapter.Descriptor, cfg locator.Config, client *http.Client, log logr.Logger) base {
	return base{desc: desc, loc: locator.New(cfg, client, log)}
}

func (b base) Descriptor() adapter.Descriptor { return b.desc }

func (b base) ResolveBinary(ctx context.Context, spec adapter.VersionSpec, opts adapter.ResolveOptions) (adapter.ResolvedBinary, error) {
	return b.loc.Resolve(ctx, spec, opts)
}

// validateCommon checks the request kind against the descriptor and the
// fields that request kind always needs.
func validateCommon(desc adapter.Descriptor, task adapter.TaskDefinition) []adapter.FieldError {
	request := task.EffectiveRequest()
	if !desc.SupportsRequest(request) {
		return []adapter.FieldError{{
			Field:   "request",
			Message: fmt.Sprintf("%s does not support %q", desc.Name, request),
		}}
	}

	var fields []adapter.FieldError
	switch request {
	case adapter.RequestLaunch:
		if task.Program == "" {
			fields = append(fields, adapter.FieldError{Field: "program", Message: "is required for launch"})
		}
	case adapter.RequestAttach:
		if task.AttachPid <= 0 && (task.Host == "" || task.Port == 0) {
			fields = append(fields, adapter.FieldError{Field: "attachPid", Message: "attach needs a process id or a host and port"})
		}
	}
	return fields
}

// buildBody assembles the request body: the request kind, then the adapter's
// generated fields, then the task's Extra fields last so callers can override
// anything generated. json.Marshal orders map keys, so identical tasks always
// produce identical bytes.
func buildBody(task adapter.TaskDefinition, fields map[string]any) (adapter.LaunchRequestBody, error) {
	merged := make(map[string]any, len(fields)+len(task.Extra)+1)
	merged["request"] = string(task.EffectiveRequest())
	for k, v := range fields {
		merged[k] = v
	}
	for k, v := range task.Extra {
		merged[k] = v
	}

	body, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode launch request body: %w", err)
	}
	return body, nil
}

// effectiveCwd is the task working directory, defaulting to the directory
// containing the program.
func effectiveCwd(task adapter.TaskDefinition) string {
	if task.Cwd != "" {
		return task.Cwd
	}
	if task.Program != "" {
		return filepath.Dir(task.Program)
	}
	return ""
}
