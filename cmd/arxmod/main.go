// Command arxmod inspects a compiled .arxmod container without executing
// it: header/section summary, class manifests, or a structural validation
// pass (spec.md §6).
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/arxlang/arx/internal/container"
)

var (
	showSections bool
	showClasses  bool
	validateOnly bool
	showHex      bool
)

var rootCmd = &cobra.Command{
	Use:   "arxmod <file.arxmod>",
	Short: "Inspect a compiled .arxmod container",
	Long: `arxmod prints information about a compiled .arxmod container.

Examples:
  arxmod program.arxmod               header and summary (default)
  arxmod program.arxmod -sections     table of contents
  arxmod program.arxmod -classes      class/method/field manifests
  arxmod program.arxmod -validate     structural validation only, no output
  arxmod program.arxmod -hex          hex dump of the raw file`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runInspect,
}

func init() {
	rootCmd.Flags().BoolVar(&showSections, "sections", false, "list TOC sections")
	rootCmd.Flags().BoolVar(&showClasses, "classes", false, "list class/method/field manifests")
	rootCmd.Flags().BoolVar(&validateOnly, "validate", false, "validate structure and exit; no output on success")
	rootCmd.Flags().BoolVar(&showHex, "hex", false, "hex dump the raw file")
}

func main() {
	// Accept single-dash long flags (-sections) as well as the
	// double-dash form pflag parses natively.
	for i, arg := range os.Args[1:] {
		if len(arg) > 2 && arg[0] == '-' && arg[1] != '-' {
			os.Args[i+1] = "-" + arg
		}
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "arxmod: %v\n", err)
		os.Exit(1)
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}

	mod, err := container.Read(data)
	if err != nil {
		if validateOnly {
			fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
			os.Exit(1)
		}
		return errors.Wrap(err, "load error")
	}

	if validateOnly {
		return nil
	}

	if showHex {
		fmt.Print(hex.Dump(data))
		return nil
	}
	if showSections {
		printSections(mod)
		return nil
	}
	if showClasses {
		printClasses(mod)
		return nil
	}
	printInfo(path, mod)
	return nil
}

func printInfo(path string, mod *container.Module) {
	kind := "library"
	if mod.Header.Flags&container.FlagExecutable != 0 {
		kind = "executable"
	}
	fmt.Printf("file:        %s\n", path)
	fmt.Printf("app name:    %s\n", mod.AppName)
	fmt.Printf("kind:        %s\n", kind)
	fmt.Printf("version:     %d\n", mod.Header.Version)
	fmt.Printf("entry point: %d\n", mod.Header.EntryPoint)
	fmt.Printf("instructions: %d\n", len(mod.Instructions))
	fmt.Printf("strings:     %d\n", len(mod.Strings))
	fmt.Printf("classes:     %d\n", len(mod.Classes))
}

func printSections(mod *container.Module) {
	fmt.Printf("%-16s %10s %10s\n", "name", "offset", "size")
	for _, e := range mod.TOC {
		fmt.Printf("%-16s %10d %10d\n", e.Name, e.Offset, e.Size)
	}
}

func printClasses(mod *container.Module) {
	for _, cls := range mod.Classes {
		fmt.Printf("class %s (id=%d parent=%d instance_size=%d)\n", cls.Name, cls.ClassID, cls.ParentClassID, cls.InstanceSize)
		for _, f := range cls.Fields {
			fmt.Printf("  field %s type=%d offset=%d\n", f.Name, f.TypeID, f.Offset)
		}
		for _, m := range cls.Methods {
			fmt.Printf("  method %s(%s) -> %s @%d id=%d\n", m.Name, m.ParamTypes, m.ReturnType, m.Offset, m.MethodID)
		}
	}
}
