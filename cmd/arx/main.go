// Command arx is the ARX compiler: source -> AST -> bytecode -> linked
// .arxmod container (spec.md §4.1-§4.3). It also carries a disassemble
// subcommand for inspecting the instruction stream it produces, the
// compiler-side counterpart to cmd/arxmod's container-side inspection.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/arxlang/arx/internal/arxlog"
	"github.com/arxlang/arx/internal/ast"
	"github.com/arxlang/arx/internal/codegen"
	"github.com/arxlang/arx/internal/container"
	"github.com/arxlang/arx/internal/linker"
	"github.com/arxlang/arx/internal/parser"
)

var (
	debug        bool
	outputFile   string
	eagerResolve bool
)

var rootCmd = &cobra.Command{
	Use:   "arx <input.arx>",
	Short: "ARX compiler",
	Long: `arx compiles ARX source files into linked .arxmod bytecode containers.

Examples:
  arx program.arx                  compile to program.arxmod
  arx program.arx -o out.arxmod    compile to a named output file
  arx disasm program.arxmod        disassemble a compiled container`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCompile,
}

var disasmCmd = &cobra.Command{
	Use:   "disasm <file.arxmod>",
	Short: "Disassemble a compiled .arxmod container",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisasm,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output .arxmod path (default: <input>.arxmod)")
	rootCmd.Flags().BoolVar(&eagerResolve, "eager-resolve", false, "run the linker's eager method-resolution hook (a no-op: calls stay name-resolved at run time)")
	rootCmd.AddCommand(disasmCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "arx: %v\n", err)
		os.Exit(1)
	}
}

func runCompile(cmd *cobra.Command, args []string) error {
	inputFile := args[0]
	log := arxlog.New(debug, false)
	defer log.Sync()

	src, err := os.ReadFile(inputFile)
	if err != nil {
		return errors.Wrapf(err, "reading %s", inputFile)
	}

	p := parser.New(string(src))
	mod, err := p.Parse()
	if err != nil {
		return errors.Wrap(err, "parse error")
	}
	if errs := p.Errors(); len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	moduleName := strings.TrimSuffix(filepath.Base(inputFile), filepath.Ext(inputFile))
	compiled, err := compile(moduleName, mod, log)
	if err != nil {
		return err
	}

	lnk := linker.New(log, linker.WithEagerResolve(eagerResolve))
	linked, err := lnk.Link(compiled)
	if err != nil {
		return errors.Wrap(err, "link error")
	}

	data, err := container.Build(moduleName, linked)
	if err != nil {
		return errors.Wrap(err, "container encode error")
	}

	out := outputFile
	if out == "" {
		out = moduleName + ".arxmod"
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", out)
	}

	fmt.Printf("compiled %s -> %s (%d bytes)\n", inputFile, out, len(data))
	return nil
}

func compile(moduleName string, mod *ast.Module, log *arxlog.Logger) (*codegen.Module, error) {
	c := codegen.New(moduleName, log)
	compiled, err := c.Compile(mod)
	if err != nil {
		return nil, errors.Wrap(err, "codegen error")
	}
	for _, w := range c.Warnings() {
		fmt.Fprintf(os.Stderr, "arx: warning: %s\n", w.Message)
	}
	return compiled, nil
}

func runDisasm(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "reading %s", args[0])
	}
	mod, err := container.Read(data)
	if err != nil {
		return errors.Wrap(err, "load error")
	}

	fmt.Printf("; module %q (%d instructions, %d strings, %d classes)\n",
		mod.AppName, len(mod.Instructions), len(mod.Strings), len(mod.Classes))
	for i, s := range mod.Strings {
		fmt.Printf("; string[%d] = %q\n", i, s)
	}
	for _, cls := range mod.Classes {
		fmt.Printf("; class %s (id=%d parent=%d fields=%d)\n", cls.Name, cls.ClassID, cls.ParentClassID, cls.FieldCount)
		for _, m := range cls.Methods {
			fmt.Printf(";   method %s @%d (%s) -> %s\n", m.Name, m.Offset, m.ParamTypes, m.ReturnType)
		}
	}
	for i, ins := range mod.Instructions {
		fmt.Printf("%6d  %s\n", i, ins)
	}
	return nil
}
