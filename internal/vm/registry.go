package vm

import "github.com/arxlang/arx/internal/codegen"

// classEntry is the runtime-resident form of a codegen.ClassManifest,
// indexed for O(1) method lookup by name (spec.md §3 "class registry
// (classes, methods, fields)").
type classEntry struct {
	manifest codegen.ClassManifest
	methods  map[string]codegen.MethodManifest
	fields   map[string]codegen.FieldManifest
}

// registry is the VM's class registry: every class in the loaded module,
// keyed by class_id, plus a name index for dispatch-by-name (spec.md
// §E.5's chosen resolution strategy).
type registry struct {
	byID   map[uint64]*classEntry
	byName map[string]*classEntry
}

func newRegistry() *registry {
	return &registry{byID: make(map[uint64]*classEntry), byName: make(map[string]*classEntry)}
}

func (r *registry) load(classes []codegen.ClassManifest) {
	for _, cls := range classes {
		entry := &classEntry{
			manifest: cls,
			methods:  make(map[string]codegen.MethodManifest, len(cls.Methods)),
			fields:   make(map[string]codegen.FieldManifest, len(cls.Fields)),
		}
		for _, m := range cls.Methods {
			entry.methods[m.Name] = m
		}
		for _, f := range cls.Fields {
			entry.fields[f.Name] = f
		}
		r.byID[cls.ClassID] = entry
		r.byName[cls.Name] = entry
	}
}

func (r *registry) byClassID(id uint64) (*classEntry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// resolveMethod walks the parent_class_id inheritance chain looking for a
// method named name, starting at the object's own class (spec.md §4.4
// "OBJ_CALL_METHOD": "look up by name in the class's method manifest
// (walking the parent_class_id chain for inherited methods)").
func (r *registry) resolveMethod(classID uint64, name string) (codegen.MethodManifest, *classEntry, bool) {
	entry, ok := r.byID[classID]
	for ok {
		if m, found := entry.methods[name]; found {
			return m, entry, true
		}
		if entry.manifest.ParentClassID == 0 {
			break
		}
		entry, ok = r.byID[entry.manifest.ParentClassID]
	}
	return codegen.MethodManifest{}, nil, false
}

// resolveField walks the same chain for a field (used when a subclass
// reads/writes a field declared on a superclass).
func (r *registry) resolveField(classID uint64, name string) (codegen.FieldManifest, bool) {
	entry, ok := r.byID[classID]
	for ok {
		if f, found := entry.fields[name]; found {
			return f, true
		}
		if entry.manifest.ParentClassID == 0 {
			break
		}
		entry, ok = r.byID[entry.manifest.ParentClassID]
	}
	return codegen.FieldManifest{}, false
}
