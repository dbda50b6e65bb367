// Command arxvm loads and runs a compiled .arxmod container (spec.md
// §4.4-§4.5). It supports single-instruction stepping and a post-mortem
// stack/object dump for debugging a faulted run.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/arxlang/arx/internal/arxlog"
	"github.com/arxlang/arx/internal/loader"
	"github.com/arxlang/arx/internal/vm"
)

var (
	debugFlag  bool
	traceFlag  bool
	dumpFlag   bool
	stepFlag   bool
	outputFile string
)

var rootCmd = &cobra.Command{
	Use:   "arxvm <file.arxmod>",
	Short: "ARX bytecode virtual machine",
	Long: `arxvm loads a compiled .arxmod container and executes it.

Examples:
  arxvm program.arxmod             run to completion
  arxvm program.arxmod -trace      log every instruction as it executes
  arxvm program.arxmod -step       single-step, printing state between instructions
  arxvm program.arxmod -dump       print a final stack/object dump on exit
  arxvm program.arxmod -o out.txt  write program output to out.txt instead of stdout`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runVM,
}

func init() {
	rootCmd.Flags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&traceFlag, "trace", false, "log every executed instruction")
	rootCmd.Flags().BoolVar(&dumpFlag, "dump", false, "print a stack/object dump on exit")
	rootCmd.Flags().BoolVar(&stepFlag, "step", false, "single-step, printing pc/stack between instructions")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write program output to this file instead of stdout")
}

func main() {
	// Accept single-dash long flags (-trace) as well as the double-dash
	// form pflag parses natively.
	for i, arg := range os.Args[1:] {
		if len(arg) > 2 && arg[0] == '-' && arg[1] != '-' {
			os.Args[i+1] = "-" + arg
		}
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "arxvm: %v\n", err)
		os.Exit(1)
	}
}

func runVM(cmd *cobra.Command, args []string) error {
	log := arxlog.New(debugFlag, traceFlag)
	defer log.Sync()

	mod, err := loader.LoadFile(args[0], log)
	if err != nil {
		return errors.Wrap(err, "load error")
	}

	stdout := io.Writer(os.Stdout)
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return errors.Wrapf(err, "opening %s", outputFile)
		}
		defer f.Close()
		stdout = f
	}

	machine := vm.New(vm.WithStdout(stdout), vm.WithStdin(os.Stdin), vm.WithLogger(log))
	machine.Load(mod)

	var runErr error
	if stepFlag {
		runErr = stepLoop(machine)
	} else {
		runErr = machine.Run()
	}

	if dumpFlag {
		dump(machine)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "arxvm: fault: %v\n", runErr)
		os.Exit(1)
	}
	return nil
}

// stepLoop drives the VM one instruction at a time, printing pc and the
// live data-stack before each step (SPEC_FULL.md §C.2 "-step").
func stepLoop(machine *vm.VM) error {
	for machine.State() == vm.Ready || machine.State() == vm.Running {
		fmt.Printf("pc=%d stack=%v\n", machine.PC(), machine.StackSnapshot())
		if err := machine.Step(); err != nil {
			return err
		}
	}
	return nil
}

func dump(machine *vm.VM) {
	fmt.Printf("--- final state ---\n")
	fmt.Printf("state: %s\n", machine.State())
	fmt.Printf("pc: %d\n", machine.PC())
	fmt.Printf("stack: %v\n", machine.StackSnapshot())
	fmt.Printf("objects: %d\n", machine.ObjectCount())
	for _, addr := range machine.LiveObjectAddresses() {
		fields, ok := machine.ObjectFields(addr)
		if !ok {
			continue
		}
		fmt.Printf("  object@%d:\n", addr)
		for _, f := range fields {
			fmt.Printf("    %s = %d\n", f.Name, f.Value)
		}
	}
}
