// Package loader reads an .arxmod file and hydrates VM tables from it
// (spec.md §4.5). It never executes anything; Load either returns a fully
// populated vm.LoadedModule or an error — the container package's atomic
// read already guarantees no partial state reaches here.
package loader

import (
	"os"

	"github.com/pkg/errors"

	"github.com/arxlang/arx/internal/arxlog"
	"github.com/arxlang/arx/internal/container"
	"github.com/arxlang/arx/internal/vm"
)

// LoadFile reads path, validates it, and returns the hydrated module ready
// for vm.VM.Load.
func LoadFile(path string, log *arxlog.Logger) (vm.LoadedModule, error) {
	if log == nil {
		log = arxlog.Nop()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return vm.LoadedModule{}, errors.Wrapf(err, "reading %s", path)
	}
	log.Debugf("loader: read %d bytes from %s", len(data), path)
	return Load(data)
}

// Load validates and decodes an in-memory .arxmod buffer.
func Load(data []byte) (vm.LoadedModule, error) {
	mod, err := container.Read(data)
	if err != nil {
		return vm.LoadedModule{}, err
	}

	executable := mod.Header.Flags&container.FlagExecutable != 0

	return vm.LoadedModule{
		AppName:      mod.AppName,
		Instructions: mod.Instructions,
		Strings:      mod.Strings,
		Classes:      mod.Classes,
		EntryPoint:   int64(mod.Header.EntryPoint),
		Executable:   executable,
	}, nil
}
