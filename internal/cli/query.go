package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-lathe/internal/buildstate"
	"github.com/mvp-joe/project-lathe/internal/depgraph"
	"github.com/mvp-joe/project-lathe/internal/element"
	"github.com/mvp-joe/project-lathe/internal/handle"
	"github.com/mvp-joe/project-lathe/internal/indictment"
)

var (
	depsDependenciesFlag bool
	graphDotFlag         bool
	problemsLocaleFlag   string
)

// depsCmd represents the deps command
var depsCmd = &cobra.Command{
	Use:   "deps <type|unit|type#member>",
	Short: "Show what depends on a type, unit or member",
	Long: `Deps looks up a node of the dependency graph in the last committed
snapshot and lists its dependents, i.e. what a change to it can affect.
With --dependencies it lists what the node depends on instead.

Members are written type#field or type#method/arity. Deps prints the
member as compiled in the last build and the units a change to it would
recompile.

Examples:
  lathe deps geo.Shape
  lathe deps src/geo/Circle.java --dependencies
  lathe deps geo.Shape#area/0
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withState(cmd, func(ws *workspace, s *buildstate.State, out io.Writer) error {
			if strings.Contains(args[0], "#") {
				return printMember(out, s, ws.store, args[0], depsDependenciesFlag)
			}
			return printDeps(out, s, args[0], depsDependenciesFlag)
		})
	},
}

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Summarize or export the dependency graph",
	Long: `Graph prints node counts of the dependency graph in the last committed
snapshot. With --dot it writes the whole graph in Graphviz DOT format:

  lathe graph --dot | dot -Tsvg > graph.svg
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withState(cmd, func(_ *workspace, s *buildstate.State, out io.Writer) error {
			if graphDotFlag {
				return s.Graph.WriteDOT(out)
			}
			printGraphSummary(out, s.Graph)
			return nil
		})
	},
}

// stateCmd represents the state command
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Summarize the last committed snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(projectDir)
		if err != nil {
			return err
		}
		ws, err := openWorkspace(root, newLogger(cmd.ErrOrStderr(), verbose), nil)
		if err != nil {
			return err
		}
		defer ws.Close()

		s, version, err := currentState(ws)
		if err != nil {
			return err
		}
		retained, err := ws.engine.Retained()
		if err != nil {
			return err
		}
		printStateSummary(cmd.OutOrStdout(), s, version, len(retained))
		return nil
	},
}

// problemsCmd represents the problems command
var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "List the problems of the last build",
	Long: `Problems lists the problems recorded in the last committed snapshot,
rendered in the configured locale or the one given with --locale.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(projectDir)
		if err != nil {
			return err
		}
		ws, err := openWorkspace(root, newLogger(cmd.ErrOrStderr(), verbose), nil)
		if err != nil {
			return err
		}
		defer ws.Close()

		s, _, err := currentState(ws)
		if err != nil {
			return err
		}
		locale := ws.cfg.Locale
		if problemsLocaleFlag != "" {
			locale = problemsLocaleFlag
		}
		printProblems(cmd.OutOrStdout(), ws.catalog, s.Problems, locale)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(depsCmd, graphCmd, stateCmd, problemsCmd)
	depsCmd.Flags().BoolVarP(&depsDependenciesFlag, "dependencies", "d", false, "List dependencies instead of dependents")
	graphCmd.Flags().BoolVar(&graphDotFlag, "dot", false, "Write the graph in Graphviz DOT format")
	problemsCmd.Flags().StringVar(&problemsLocaleFlag, "locale", "", "Render messages in this locale (e.g. de, fr-CA)")
}

// errNoState is returned by read-only commands before the first build.
var errNoState = errors.New("no committed build state; run 'lathe build' first")

func currentState(ws *workspace) (*buildstate.State, uint16, error) {
	s, version, err := ws.engine.Current()
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, errNoState
	}
	return s, version, err
}

func withState(cmd *cobra.Command, fn func(ws *workspace, s *buildstate.State, out io.Writer) error) error {
	root, err := resolveRoot(projectDir)
	if err != nil {
		return err
	}
	ws, err := openWorkspace(root, newLogger(cmd.ErrOrStderr(), verbose), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	s, _, err := currentState(ws)
	if err != nil {
		return err
	}
	return fn(ws, s, cmd.OutOrStdout())
}

// lookupNode resolves a command-line name to a graph node, preferring
// types over units.
func lookupNode(s *buildstate.State, name string) (depgraph.Key, bool) {
	for _, k := range []depgraph.Key{
		depgraph.TypeKey(element.TypeName(name)),
		depgraph.UnitKey(element.UnitID(name)),
		depgraph.ArchiveKey(element.ArchiveID(name)),
		depgraph.NamespaceKey(element.PackageName(name)),
	} {
		if s.Graph.HasNode(k) {
			return k, true
		}
	}
	return depgraph.Key{}, false
}

func printDeps(out io.Writer, s *buildstate.State, name string, dependencies bool) error {
	k, ok := lookupNode(s, name)
	if !ok {
		return fmt.Errorf("%q is not a type, unit, archive or package of the last build", name)
	}

	var keys []depgraph.Key
	label := "Dependents"
	if dependencies {
		keys = s.Graph.DependenciesOf(k)
		label = "Dependencies"
	} else {
		keys = s.Graph.DependentsOf(k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	fmt.Fprintf(out, "%s of %s (%d):\n", label, k, len(keys))
	for _, d := range keys {
		fmt.Fprintf(out, "  %s\n", d)
	}

	if k.Kind == depgraph.KindType {
		t := element.TypeName(k.Name)
		if supers := s.Graph.Supertypes(t); len(supers) > 0 && dependencies {
			fmt.Fprintf(out, "Supertypes: %v\n", supers)
		}
		if subs := s.Graph.TransitiveSubtypes(t); len(subs) > 0 && !dependencies {
			fmt.Fprintf(out, "Subtypes:   %v\n", subs)
		}
	}
	return nil
}

// printMember binds a member descriptor in s and lists the units a change
// to it would recompile.
func printMember(out io.Writer, s *buildstate.State, src handle.ArtifactSource, name string, dependencies bool) error {
	d, err := handle.Parse(name)
	if err != nil {
		return err
	}
	v, err := handle.Bind(d, s, src)
	if errors.Is(err, element.ErrNotPresent) {
		return fmt.Errorf("%s is not present in the last build: %w", d, err)
	}
	if err != nil {
		return err
	}
	entry, err := v.Entry()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s (%s):\n", d.Kind, d, entry.Unit)
	var ind indictment.Indictment
	switch d.Kind {
	case handle.KindMethod:
		for _, m := range v.Methods() {
			fmt.Fprintf(out, "  %s\n", m.Signature())
		}
		ind = indictment.Method(d.Owner, d.Name, d.Arity)
	case handle.KindField:
		f := v.Field()
		fmt.Fprintf(out, "  %s %s\n", f.Name, f.Type)
		ind = indictment.Field(d.Owner, d.Name)
	default:
		return printDeps(out, s, string(d.Owner), dependencies)
	}
	if dependencies {
		return nil
	}

	units := (&indictment.Resolver{Graph: s.Graph}).Resolve(indictment.NewSet(ind))
	fmt.Fprintf(out, "Dependents of %s (%d):\n", d, len(units))
	for _, u := range units {
		fmt.Fprintf(out, "  %s\n", depgraph.UnitKey(u))
	}
	return nil
}

func printGraphSummary(out io.Writer, g *depgraph.Graph) {
	fmt.Fprintf(out, "Nodes: %s\n", formatNumber(g.Len()))
	for _, kind := range []depgraph.NodeKind{depgraph.KindUnit, depgraph.KindType, depgraph.KindNamespace, depgraph.KindArchive} {
		fmt.Fprintf(out, "  %-10s %s\n", kind.String()+":", formatNumber(len(g.Nodes(kind))))
	}
}

func printStateSummary(out io.Writer, s *buildstate.State, version uint16, retained int) {
	st := s.Stats()
	fmt.Fprintf(out, "State:     %s (snapshot v%d)\n", s.ID, version)
	fmt.Fprintf(out, "Retained:  %d\n", retained)
	fmt.Fprintf(out, "Packages:  %s\n", formatNumber(st.Packages))
	fmt.Fprintf(out, "Sources:   %s\n", formatNumber(st.Sources))
	fmt.Fprintf(out, "Binaries:  %s\n", formatNumber(st.Binaries))
	fmt.Fprintf(out, "Types:     %s\n", formatNumber(st.Types))
	fmt.Fprintf(out, "Nodes:     %s\n", formatNumber(st.Nodes))
	fmt.Fprintf(out, "Problems:  %s (%s errors)\n", formatNumber(st.Problems), formatNumber(st.Errors))
}
