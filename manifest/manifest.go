// Package manifest builds and serializes the session manifest described
// in spec §6: the module/symbol table an external resolver tool joins
// against runtime function_id values, plus the session metadata
// (spec §4 supplement) a resolver needs but spec.md's schema doesn't
// name. Hashing follows spec §6/§8 literally: FNV-1a-32 over the
// case-folded module path, with a zero result remapped to the golden
// ratio constant to keep module_id unambiguous with "no module".
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
)

const formatVersion = "1.0.0"

// goldenRatio32 is the replacement for a module_id that would otherwise
// hash to zero, per spec §6.
const goldenRatio32 = 0x9E3779B9

// Module describes one binary image contributing symbols to the trace.
type Module struct {
	ModuleID    uint32 `json:"module_id"`
	Path        string `json:"path"`
	BaseAddress string `json:"base_address,omitempty"`
	Size        uint64 `json:"size,omitempty"`
	UUID        string `json:"uuid,omitempty"`
}

// Symbol is one resolvable function within a Module.
type Symbol struct {
	FunctionID  string `json:"function_id"`
	ModuleID    uint32 `json:"module_id"`
	SymbolIndex uint32 `json:"symbol_index"`
	Name        string `json:"name"`
}

// Session carries process/session metadata a resolver needs that
// spec.md's schema (modules/symbols only) doesn't mention — additive,
// per SPEC_FULL.md §4 supplement 6.
type Session struct {
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	PID          int    `json:"pid"`
	SessionID    string `json:"session_id"`
	TimeStartNs  uint64 `json:"time_start_ns"`
	TimeEndNs    uint64 `json:"time_end_ns"`
	EventCount   uint64 `json:"event_count"`
	BytesWritten uint64 `json:"bytes_written"`
}

// Manifest is the JSON document written to manifest.json at the root of
// a session directory.
type Manifest struct {
	FormatVersion string   `json:"format_version"`
	Session       *Session `json:"session,omitempty"`
	Modules       []Module `json:"modules"`
	Symbols       []Symbol `json:"symbols"`
}

var errEndBeforeStart = errors.New("atfcore: manifest end time precedes start time")

// Validate reproduces the reader-side check ManifestInfo performs
// (query_engine/src/atf/manifest.rs), applied here to the manifest this
// process itself just built, before it's written to disk.
func (m *Manifest) Validate() error {
	if m.Session != nil && m.Session.TimeEndNs != 0 && m.Session.TimeEndNs < m.Session.TimeStartNs {
		return errEndBeforeStart
	}
	return nil
}

type moduleEntry struct {
	id          uint32
	path        string
	baseAddress string
	size        uint64
	uuid        string
	nextIdx     uint32
	symbols     map[string]Symbol // name -> already-assigned symbol
}

// Builder accumulates modules and symbols as they're first observed by
// the tracer, assigning module_id/symbol_index/function_id per spec §6,
// then renders the finished Manifest. A Builder is safe for concurrent
// use by multiple registering goroutines.
type Builder struct {
	mu      sync.Mutex
	session *Session
	order   []string // module path insertion order, case-preserved as first seen
	modules map[string]*moduleEntry
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{modules: make(map[string]*moduleEntry)}
}

// SetSession attaches session metadata to the manifest this Builder
// will eventually render.
func (b *Builder) SetSession(s Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sc := s
	b.session = &sc
}

func hashModulePath(path string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(path)))
	sum := h.Sum32()
	if sum == 0 {
		return goldenRatio32
	}
	return sum
}

// RegisterModule returns the module_id for path, computing and caching
// it on first sight; case differences in path map to the same module,
// matching FNV-1a-32 over the case-folded path.
func (b *Builder) RegisterModule(path string) uint32 {
	key := strings.ToLower(path)
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.modules[key]; ok {
		return e.id
	}
	e := &moduleEntry{
		id:      hashModulePath(path),
		path:    path,
		symbols: make(map[string]Symbol),
	}
	b.modules[key] = e
	b.order = append(b.order, key)
	return e.id
}

// RegisterSymbol returns the function_id for (path, name), assigning a
// fresh monotonically increasing symbol_index on first sight and
// reusing the prior assignment on every subsequent call for the same
// module (case-insensitively) and name — spec §8 scenario 5.
func (b *Builder) RegisterSymbol(path, name string) uint64 {
	key := strings.ToLower(path)
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.modules[key]
	if !ok {
		e = &moduleEntry{
			id:      hashModulePath(path),
			path:    path,
			symbols: make(map[string]Symbol),
		}
		b.modules[key] = e
		b.order = append(b.order, key)
	}
	if sym, ok := e.symbols[name]; ok {
		return functionID(sym.ModuleID, sym.SymbolIndex)
	}
	e.nextIdx++
	sym := Symbol{
		FunctionID:  fmt.Sprintf("0x%016x", functionID(e.id, e.nextIdx)),
		ModuleID:    e.id,
		SymbolIndex: e.nextIdx,
		Name:        name,
	}
	e.symbols[name] = sym
	return functionID(e.id, e.nextIdx)
}

func functionID(moduleID uint32, symbolIndex uint32) uint64 {
	return uint64(moduleID)<<32 | uint64(symbolIndex)
}

// AnnotateModule fills in the optional base_address/size/uuid fields
// for a module already registered via RegisterModule or RegisterSymbol.
// It is a no-op if path was never registered.
func (b *Builder) AnnotateModule(path, baseAddress string, size uint64, uuid string) {
	key := strings.ToLower(path)
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.modules[key]
	if !ok {
		return
	}
	e.baseAddress = baseAddress
	e.size = size
	e.uuid = uuid
}

// Build renders the accumulated modules and symbols into a Manifest, in
// module-registration order with each module's symbols in
// ascending symbol_index order.
func (b *Builder) Build() Manifest {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := Manifest{FormatVersion: formatVersion, Session: b.session}
	for _, key := range b.order {
		e := b.modules[key]
		m.Modules = append(m.Modules, Module{
			ModuleID:    e.id,
			Path:        e.path,
			BaseAddress: e.baseAddress,
			Size:        e.size,
			UUID:        e.uuid,
		})
		syms := make([]Symbol, 0, len(e.symbols))
		for _, s := range e.symbols {
			syms = append(syms, s)
		}
		sortSymbolsByIndex(syms)
		m.Symbols = append(m.Symbols, syms...)
	}
	return m
}

func sortSymbolsByIndex(s []Symbol) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1].SymbolIndex > s[j].SymbolIndex; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// MarshalJSON renders m as pretty-printed JSON matching the field
// layout of spec §6's schema.
func (m Manifest) MarshalJSON() ([]byte, error) {
	type alias Manifest
	return json.MarshalIndent(alias(m), "", "  ")
}
