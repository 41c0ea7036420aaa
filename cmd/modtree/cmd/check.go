package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/GoCodeAlone/modtree"
	"github.com/GoCodeAlone/modtree/internal/sim"
	"github.com/GoCodeAlone/modtree/manifest"
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	var envPrefix string

	cmd := &cobra.Command{
		Use:   "check <manifest>",
		Short: "Validate a manifest without starting any module",
		Long: `Load the manifest, apply environment overrides and build the tree, which
rejects unknown kinds, missing dependencies and cycles. On success the
modules are listed with their dependencies.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			if _, err := m.ApplyEnv(envPrefix); err != nil {
				return err
			}
			descs, err := m.Descriptions(sim.Catalog(nil))
			if err != nil {
				return err
			}
			var opts []modtree.Option
			if m.Name != "" {
				opts = append(opts, modtree.WithName(m.Name))
			}
			tree, err := modtree.New(descs, append(opts, modtree.WithLogger(nopLogger{}))...)
			if err != nil {
				return err
			}
			return printModules(cmd.OutOrStdout(), tree, m)
		},
	}

	cmd.Flags().StringVar(&envPrefix, "env-prefix", "MODTREE", "Prefix of environment overrides")

	return cmd
}

func printModules(out io.Writer, tree *modtree.Tree, m *manifest.Manifest) error {
	fmt.Fprintf(out, "Tree %s is valid\n\n", tree.Name())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tKIND\tNEEDED\tDEPENDENCIES")
	for _, info := range tree.Modules() {
		deps := "-"
		if len(info.Dependencies) > 0 {
			deps = strings.Join(info.Dependencies, ", ")
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", info.Name, m.Modules[info.Name].Kind, info.Needed, deps)
	}
	return w.Flush()
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
