package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/session"
	"github.com/ashpool37/dapbridge/pkg/logger"
	"github.com/ashpool37/dapbridge/pkg/process"
)

func NewLaunchCommand(registry *adapter.Registry, log *logger.Logger) *cobra.Command {
	var flags settingsFlags
	var (
		program     string
		programArgs []string
		cwd         string
		env         map[string]string
		stopOnEntry bool
		request     string
		attachPid   int
		host        string
		port        int
	)

	launchCmd := &cobra.Command{
		Use:   "launch <adapter>",
		Short: "Launches a debug session with the given adapter",
		Long: `Launches a debug session: resolves the adapter binary, spawns the adapter
process and waits until it accepts DAP requests. The session then runs until
the adapter process exits or the command is interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := adapter.ID(args[0])
			settings, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}

			task := adapter.TaskDefinition{
				Request:     adapter.RequestKind(request),
				Program:     program,
				Args:        programArgs,
				Cwd:         cwd,
				Env:         env,
				StopOnEntry: stopOnEntry,
				AttachPid:   attachPid,
				Host:        host,
				Port:        port,
			}

			launcher := session.NewLauncher(registry, process.NewOSExecutor(log.Logger), log.Logger)
			sess, err := launcher.Launch(cmd.Context(), session.LaunchRequest{
				AdapterID: id,
				Task:      task,
				Version:   settings.VersionSpec(id),
				Resolve:   settings.ResolveOptions(id),
				OnStateChange: func(state session.State) {
					log.V(1).Info("session state changed", "state", state)
				},
			})
			if err != nil {
				return err
			}
			defer sess.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "session %s ready: adapter %s (version %q) running as pid %d\n",
				sess.ID(), sess.AdapterID(), sess.BinaryVersion(), sess.Pid())

			exit, err := sess.WaitExit(cmd.Context())
			if err != nil {
				// Interrupted; Close stops the adapter process.
				return nil
			}
			if exit.ExitCode > 0 {
				return fmt.Errorf("adapter process exited with code %d", exit.ExitCode)
			}
			return nil
		},
	}

	flags.addTo(launchCmd.Flags())
	launchFlags := launchCmd.Flags()
	launchFlags.StringVar(&program, "program", "", "Executable or script to debug")
	launchFlags.StringArrayVar(&programArgs, "arg", nil, "Argument for the debuggee (repeatable)")
	launchFlags.StringVar(&cwd, "cwd", "", "Debuggee working directory")
	launchFlags.StringToStringVar(&env, "env", nil, "Environment variable for the debuggee (key=value, repeatable)")
	launchFlags.BoolVar(&stopOnEntry, "stop-on-entry", false, "Pause the debuggee on the first instruction")
	launchFlags.StringVar(&request, "request", "launch", "DAP request kind: launch or attach")
	launchFlags.IntVar(&attachPid, "attach-pid", 0, "Process to attach to")
	launchFlags.StringVar(&host, "host", "", "Remote attach host")
	launchFlags.IntVar(&port, "port", 0, "Remote attach (or Xdebug) port")

	return launchCmd
}
