package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/artdr/internal/catalog"
	"github.com/roach88/artdr/internal/sampler"
)

// MethodInfo is one entry of `list methods`.
type MethodInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Backends    []string `json:"backends"`
}

// ParamsInfo is the output of `list params`.
type ParamsInfo struct {
	Method string          `json:"method"`
	Fields []catalog.Field `json:"fields"`
	Common []catalog.Field `json:"common"`
}

// NewListCommand creates the list command and its subcommands.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List methods, subset strategies, or a method's parameters",
		Long: `List what the engine can run. Listings come from the method catalog and
do not touch the database.

Examples:
  artdr list methods
  artdr list subsets
  artdr list params umap --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "methods",
		Short:         "List DR methods and their back-end chains",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listMethods(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "subsets",
		Short:         "List subset strategies",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSubsets(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "params <method>",
		Short:         "List a method's parameter schema",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listParams(rootOpts, args[0], cmd)
		},
	})

	return cmd
}

func listMethods(opts *RootOptions, cmd *cobra.Command) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	infos := make([]MethodInfo, 0, len(a.catalog.Methods))
	for _, m := range a.catalog.Methods {
		chain := make([]string, len(m.Chain))
		for i, s := range m.Chain {
			chain[i] = s.Backend
		}
		infos = append(infos, MethodInfo{Name: m.Name, Description: m.Description, Backends: chain})
	}

	return a.out.Result(infos, func(w io.Writer) error {
		for _, m := range infos {
			fmt.Fprintf(w, "%-10s %s (%s)\n", m.Name, m.Description, strings.Join(m.Backends, " -> "))
		}
		return nil
	})
}

func listSubsets(opts *RootOptions, cmd *cobra.Command) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	names := sampler.Strategies()
	return a.out.Result(names, func(w io.Writer) error {
		for _, n := range names {
			fmt.Fprintln(w, n)
		}
		return nil
	})
}

func listParams(opts *RootOptions, method string, cmd *cobra.Command) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.catalog.Method(method)
	if err != nil {
		return a.out.Fail(err)
	}

	info := ParamsInfo{Method: m.Name, Fields: m.Fields, Common: a.catalog.Common.Fields}
	return a.out.Result(info, func(w io.Writer) error {
		for _, f := range info.Fields {
			fmt.Fprintln(w, describeField(f))
		}
		for _, f := range info.Common {
			fmt.Fprintln(w, describeField(f)+"  (all methods)")
		}
		return nil
	})
}

func describeField(f catalog.Field) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-18s %-8s", f.Name, f.Type)
	switch f.Type {
	case catalog.FieldRange:
		if f.Min != nil && f.Max != nil {
			fmt.Fprintf(&b, " [%g, %g]", *f.Min, *f.Max)
		}
		if f.Step != nil {
			fmt.Fprintf(&b, " step %g", *f.Step)
		}
	case catalog.FieldSelect:
		fmt.Fprintf(&b, " {%s}", strings.Join(f.Options, ", "))
	}
	fmt.Fprintf(&b, " default %v", f.Value)
	return b.String()
}
