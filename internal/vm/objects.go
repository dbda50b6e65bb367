package vm

// ObjectHeapStart is the slot at/above which the object memory manager
// allocates (spec.md §3: "a string object heap region starting at slot
// 10,000, to avoid collision with the variable region 1,000..9,999").
// OBJ_NEW-allocated user objects (Person, Student, ...) and STRING objects
// share this one region and the one object table below; the boundary only
// separates it from the variable/scratch region the codegen's LOD/STO
// addressing uses.
const ObjectHeapStart int64 = 10000

// ObjTypeString tags a STRING object's first memory slot (spec.md §3
// "String objects").
const ObjTypeString int64 = 1

// object is one append-only object-table entry (spec.md §3 "Object memory
// manager").
type object struct {
	id            int64
	classID       uint64
	memoryAddress int64
	objectSize    int64
	refCount      int64
	isAlive       bool
	creationTime  int64
}

// objectManager is the VM's bump-allocating object heap plus its
// append-only object table. It never removes entries: "the table grows
// monotonically within a VM lifetime" (spec.md §4.4 "Garbage collection").
type objectManager struct {
	table    []object
	byAddr   map[int64]int // memoryAddress -> index into table
	nextID   int64
	nextAddr int64
}

func newObjectManager() *objectManager {
	return &objectManager{
		byAddr:   make(map[int64]int),
		nextID:   1,
		nextAddr: ObjectHeapStart,
	}
}

// allocate bump-allocates size slots, zeroes them in mem, records a new
// object-table entry with refcount 1, and returns it.
func (om *objectManager) allocate(mem []int64, classID uint64, size int64, now int64) (*object, error) {
	addr := om.nextAddr
	if addr+size > int64(len(mem)) {
		return nil, ErrMemoryAccess
	}
	for i := addr; i < addr+size; i++ {
		mem[i] = 0
	}
	om.nextAddr += size

	obj := object{
		id:            om.nextID,
		classID:       classID,
		memoryAddress: addr,
		objectSize:    size,
		refCount:      1,
		isAlive:       true,
		creationTime:  now,
	}
	om.nextID++
	om.table = append(om.table, obj)
	om.byAddr[addr] = len(om.table) - 1
	return &om.table[len(om.table)-1], nil
}

func (om *objectManager) lookup(addr int64) (*object, bool) {
	idx, ok := om.byAddr[addr]
	if !ok {
		return nil, false
	}
	return &om.table[idx], true
}

// reference increments an object's refcount (vm_reference_object, spec.md
// §4.4 "Garbage collection").
func (om *objectManager) reference(addr int64) {
	if obj, ok := om.lookup(addr); ok {
		obj.refCount++
	}
}

// release decrements an object's refcount (vm_release_object). It does not
// touch isAlive or memory itself: only sweep transitions a zero-refcount
// object to dead and reclaims its memory, so a released-but-unswept object
// stays readable until the next explicit collection.
func (om *objectManager) release(addr int64) {
	if obj, ok := om.lookup(addr); ok && obj.refCount > 0 {
		obj.refCount--
	}
}

// sweep is vm_garbage_collect: re-mark every refcount>0 entry alive, zero
// every dead entry's memory, and report bytes freed. Cycles are not
// collected (spec.md §4.4).
func (om *objectManager) sweep(mem []int64) (totalFreed int64) {
	for i := range om.table {
		obj := &om.table[i]
		if obj.refCount > 0 {
			obj.isAlive = true
			continue
		}
		if !obj.isAlive {
			continue
		}
		obj.isAlive = false
		for a := obj.memoryAddress; a < obj.memoryAddress+obj.objectSize; a++ {
			mem[a] = 0
		}
		totalFreed += obj.objectSize
	}
	return totalFreed
}

// allocateString writes a STRING object (tag, length, bytes, zero
// terminator) into mem and returns its address (spec.md §3 "String
// objects").
func (om *objectManager) allocateString(mem []int64, classID uint64, s []byte, now int64) (int64, error) {
	size := int64(2 + len(s) + 1)
	obj, err := om.allocate(mem, classID, size, now)
	if err != nil {
		return 0, err
	}
	addr := obj.memoryAddress
	mem[addr] = ObjTypeString
	mem[addr+1] = int64(len(s))
	for i, b := range s {
		mem[addr+2+int64(i)] = int64(b)
	}
	mem[addr+2+int64(len(s))] = 0
	return addr, nil
}

// readString reads a STRING object's payload back out of mem.
func readString(mem []int64, addr int64) ([]byte, bool) {
	if addr < 0 || addr >= int64(len(mem)) || mem[addr] != ObjTypeString {
		return nil, false
	}
	length := mem[addr+1]
	if length < 0 || addr+2+length > int64(len(mem)) {
		return nil, false
	}
	out := make([]byte, length)
	for i := int64(0); i < length; i++ {
		out[i] = byte(mem[addr+2+i])
	}
	return out, true
}
