package codegen

import (
	"hash/fnv"
)

// FieldManifest is a persisted field entry (spec.md §3 "Class manifest").
type FieldManifest struct {
	Name   string
	TypeID int32
	Offset int64
}

// MethodManifest is a persisted method entry (spec.md §3 "Class
// manifest").
type MethodManifest struct {
	Name       string
	MethodID   uint64
	ParamCount int
	ParamTypes string // signature, ≤63 bytes persisted
	ReturnType string // ≤31 bytes persisted
	Offset     int64  // CODE-offset; filled in during per-class merge
	Flags      uint32
}

// IsFunction reports whether this manifest entry describes a
// value-returning method (non-empty return type), the condition spec.md
// §4.4's OPR RET checks ("has a non-zero return-type id").
func (m MethodManifest) IsFunction() bool { return m.ReturnType != "" }

// ClassManifest is a persisted class entry (spec.md §3 "Class manifest
// (persisted)").
type ClassManifest struct {
	Name          string
	ClassID       uint64
	ParentClassID uint64 // 0 if none
	FieldCount    int
	MethodCount   int
	InstanceSize  int64 // 8 * (own + inherited) field count
	Flags         uint32
	Fields        []FieldManifest
	Methods       []MethodManifest
}

// Flag bits shared by the module header and class manifest flags fields
// (spec.md §3, §6).
const (
	FlagLibrary    uint32 = 1
	FlagExecutable uint32 = 2
)

// TypeID assigns a stable small integer to a type name. ARX's type system
// is nominal only (spec.md §1: "the type-checker is kept nominal; the VM
// is untyped at the bytecode level") so this exists only to give the
// manifest's TypeID field a deterministic value, not to enforce anything.
func TypeID(typeName string) int32 {
	if typeName == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(typeName))
	// Keep it in a small, readable range; collisions are harmless since
	// nothing dispatches on TypeID, only on field Name/Offset.
	return int32(h.Sum32() % 1000)
}

// ClassID computes the 64-bit class identifier spec.md §3 defines:
// class_id = hash(module_name, ":", class_name).
func ClassID(moduleName, className string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(moduleName))
	_, _ = h.Write([]byte(":"))
	_, _ = h.Write([]byte(className))
	return h.Sum64()
}

// MethodID computes the method identifier spec.md §3 defines: hash over
// (module, class, ".", method, "(", param_types, ")", ":", return_type).
func MethodID(moduleName, className, methodName, paramTypes, returnType string) uint64 {
	h := fnv.New64a()
	parts := []string{moduleName, className, ".", methodName, "(", paramTypes, ")", ":", returnType}
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
	}
	return h.Sum64()
}

// ParamCount counts parameters from a comma-joined parameter-type
// signature (spec.md §4.1: "parameter_count is counted from the
// signature's parameter-type string (commas + 1 if non-empty)").
func ParamCount(paramTypes string) int {
	if paramTypes == "" {
		return 0
	}
	count := 1
	for _, r := range paramTypes {
		if r == ',' {
			count++
		}
	}
	return count
}
