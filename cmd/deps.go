package cmd

import (
	"fmt"
	"runtime/debug"

	"nanoclaw-sidecar/lockfile"

	"github.com/spf13/cobra"
)

// depsReport is the --json output of 'deps verify'.
type depsReport struct {
	Module       string `json:"module"`
	Requires     int    `json:"requires"`
	Pins         int    `json:"pins"`
	Digest       string `json:"digest"`
	BuildChecked bool   `json:"build_checked"`
}

// newDepsCmd creates the 'deps' command group
func newDepsCmd() *cobra.Command {
	var (
		modFile string
		sumFile string
	)

	depsCmd := &cobra.Command{
		Use:   "deps",
		Short: "Inspect the dependency lock files",
		Long: `Verify go.mod and go.sum. Every required module must be pinned with a
hash in go.sum, so the image build resolves exactly the locked versions.`,
	}
	depsCmd.PersistentFlags().StringVar(&modFile, "modfile", "go.mod", "Module manifest path")
	depsCmd.PersistentFlags().StringVar(&sumFile, "sumfile", "go.sum", "Lock file path")

	depsCmd.AddCommand(newDepsVerifyCmd(&modFile, &sumFile))
	depsCmd.AddCommand(newDepsDigestCmd(&modFile, &sumFile))

	return depsCmd
}

// newDepsVerifyCmd creates the 'deps verify' subcommand
func newDepsVerifyCmd(modFile, sumFile *string) *cobra.Command {
	var checkBuild bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Fail unless every dependency is pinned",
		Long: `Parse go.mod and go.sum and fail if the lock file is missing or
malformed, a requirement is unpinned, a version is not canonical or a replace
points at a local directory. With --check-build the dependencies compiled into
this binary are compared against the lock file too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, err := lockfile.Load(*modFile, *sumFile)
			if err != nil {
				return err
			}
			if err := lock.Verify(); err != nil {
				return err
			}
			if checkBuild {
				info, _ := debug.ReadBuildInfo()
				if err := lock.CheckBuild(info); err != nil {
					return err
				}
			}

			digest, err := lock.Digest()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return outputAsJSON(out, depsReport{
					Module:       lock.Module,
					Requires:     len(lock.Requires),
					Pins:         len(lock.Pins),
					Digest:       digest,
					BuildChecked: checkBuild,
				})
			}

			if !quiet {
				successColor.Fprintf(out, "✓ Lock verified: %s\n", lock.Module)
				fmt.Fprintf(out, "  %-12s %d\n", "Requires:", len(lock.Requires))
				fmt.Fprintf(out, "  %-12s %d\n", "Pins:", len(lock.Pins))
				if checkBuild {
					fmt.Fprintf(out, "  %-12s %s\n", "Build:", "matches go.sum")
				}
			}
			fmt.Fprintln(out, digest)
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkBuild, "check-build", false, "Also check the dependencies embedded in this binary")

	return cmd
}

// newDepsDigestCmd creates the 'deps digest' subcommand
func newDepsDigestCmd(modFile, sumFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Print the digest of the pinned dependency set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, err := lockfile.Load(*modFile, *sumFile)
			if err != nil {
				return err
			}
			digest, err := lock.Digest()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}
}
