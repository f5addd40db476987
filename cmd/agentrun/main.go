// Command agentrun drives a single agent through a mission against a
// target repository and emits the run's artifacts. Adapted from the
// teacher's cmd/run-executor entrypoint (signal handling, deferred
// cleanup) and cmd/vc's cobra wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentrun/agentrun/internal/orchestrator"
	"github.com/agentrun/agentrun/internal/runnerconfig"
)

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	if ec, ok := err.(errExitCode); ok {
		os.Exit(ec.code)
	}
	os.Exit(2)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentrun",
		Short: "Drive a coding agent through a mission and capture its run artifacts",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		repo       string
		agentType  string
		persona    string
		mission    string
		useDocker  bool
		dockerfile string
		verifyCmds []string
		runsRoot   string
		seed       string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one agent invocation against a target repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg runnerconfig.RunnerConfig
			var err error
			if configPath != "" {
				cfg, err = runnerconfig.Load(configPath)
			} else {
				cwd, werr := os.Getwd()
				if werr != nil {
					return werr
				}
				cfg, _, err = runnerconfig.Discover(cwd)
			}
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()
			defer cancel()

			opts := orchestrator.RunOptions{
				Config:      cfg,
				RepoLocator: repo,
				AgentType:   agentType,
				PersonaID:   persona,
				MissionID:   mission,
				UseDocker:   useDocker,
				DockerImage: dockerfile,
				VerifyCmds:  verifyCmds,
				RunsRoot:    runsRoot,
				Seed:        seed,
			}

			summary, runErr := orchestrator.Run(ctx, opts)
			if summary != nil {
				printSummary(cmd, summary)
			}
			if runErr != nil {
				return errExitCode{code: 1}
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to agentrun.yaml (default: discovered by walking up from cwd)")
	cmd.Flags().StringVar(&repo, "repo", "", "target repository locator: a path, git:<url>[#ref], or pip:<requirements>")
	cmd.Flags().StringVar(&agentType, "agent", "", "agent backend: claude, codex, or gemini")
	cmd.Flags().StringVar(&persona, "persona", "", "persona id (default: catalog default)")
	cmd.Flags().StringVar(&mission, "mission", "", "mission id (default: catalog default)")
	cmd.Flags().BoolVar(&useDocker, "docker", false, "run the agent inside a container sandbox")
	cmd.Flags().StringVar(&dockerfile, "dockerfile", "", "Dockerfile to build the sandbox image from (required with --docker)")
	cmd.Flags().StringArrayVar(&verifyCmds, "verify", nil, "verification command to run after the agent finishes (repeatable)")
	cmd.Flags().StringVar(&runsRoot, "runs-root", ".", "directory under which <target>/<timestamp>/<agent>/<seed> run directories are created")
	cmd.Flags().StringVar(&seed, "seed", "", "run seed (default: derived from the current time)")
	cmd.MarkFlagRequired("repo")
	cmd.MarkFlagRequired("agent")

	return cmd
}

type errExitCode struct{ code int }

func (e errExitCode) Error() string { return fmt.Sprintf("run exited with status %d", e.code) }

func printSummary(cmd *cobra.Command, s *orchestrator.Summary) {
	out := cmd.OutOrStdout()
	if s.ExitCode == 0 {
		color.New(color.FgGreen, color.Bold).Fprintln(out, "run succeeded")
	} else {
		color.New(color.FgRed, color.Bold).Fprintln(out, "run failed")
		if s.Failure != nil {
			fmt.Fprintf(out, "  %s: %s\n", s.Failure.Type, s.Failure.Message)
			if s.Failure.Hint != "" {
				color.New(color.FgYellow).Fprintf(out, "  hint: %s\n", s.Failure.Hint)
			}
		}
	}
	fmt.Fprintf(out, "run directory: %s\n", s.RunDir)
}
