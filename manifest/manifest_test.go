package manifest

import (
	"encoding/json"
	"hash/fnv"
	"strings"
	"testing"
)

func TestRegisterSymbolCaseInsensitiveModuleReuse(t *testing.T) {
	// spec.md §8 scenario 5.
	b := NewBuilder()
	first := b.RegisterSymbol("/usr/lib/libfoo.dylib", "open")
	second := b.RegisterSymbol("/USR/LIB/libfoo.dylib", "open")

	if first != second {
		t.Fatalf("expected same function_id for case-differing module path, got %x and %x", first, second)
	}

	m := b.Build()
	if len(m.Modules) != 1 {
		t.Fatalf("expected exactly one module, got %d", len(m.Modules))
	}
	if len(m.Symbols) != 1 {
		t.Fatalf("expected no duplicate symbol_index allocation, got %d symbols", len(m.Symbols))
	}
	if m.Symbols[0].SymbolIndex != 1 {
		t.Fatalf("expected symbol_index=1, got %d", m.Symbols[0].SymbolIndex)
	}
}

func TestRegisterSymbolMonotonicPerModule(t *testing.T) {
	b := NewBuilder()
	b.RegisterSymbol("/lib/a.so", "f1")
	b.RegisterSymbol("/lib/a.so", "f2")
	b.RegisterSymbol("/lib/a.so", "f3")

	m := b.Build()
	if len(m.Symbols) != 3 {
		t.Fatalf("expected 3 symbols, got %d", len(m.Symbols))
	}
	for i, s := range m.Symbols {
		want := uint32(i + 1)
		if s.SymbolIndex != want {
			t.Fatalf("symbol %d: expected symbol_index=%d, got %d", i, want, s.SymbolIndex)
		}
	}
}

func TestHashModulePathZeroRemapsToGoldenRatio(t *testing.T) {
	// "akhnp9x" is a short lowercase input whose FNV-1a-32 hash is exactly
	// zero: FNV-1a's last step is (h ^ b) * prime, so any prefix whose hash
	// equals the final byte's value yields zero.
	if got := hashModulePath("akhnp9x"); got != goldenRatio32 {
		t.Fatalf("expected zero to remap to 0x%x, got 0x%x", goldenRatio32, got)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte("/lib/a.so"))
	if got := hashModulePath("/lib/a.so"); got != h.Sum32() {
		t.Fatalf("expected non-zero hash to pass through unchanged, got %d", got)
	}
}

func TestFunctionIDLayout(t *testing.T) {
	id := functionID(0x1, 0x2)
	if id != (uint64(1)<<32)|2 {
		t.Fatalf("unexpected function_id layout: %x", id)
	}
}

func TestManifestValidateRejectsEndBeforeStart(t *testing.T) {
	m := Manifest{Session: &Session{TimeStartNs: 100, TimeEndNs: 50}}
	if err := m.Validate(); err == nil {
		t.Fatal("expected Validate to reject end time before start time")
	}
}

func TestManifestValidateAcceptsZeroEndTime(t *testing.T) {
	m := Manifest{Session: &Session{TimeStartNs: 100, TimeEndNs: 0}}
	if err := m.Validate(); err != nil {
		t.Fatalf("expected an unset (zero) end time to be valid, got %v", err)
	}
}

func TestBuildRendersModulesInRegistrationOrder(t *testing.T) {
	b := NewBuilder()
	b.RegisterModule("/lib/z.so")
	b.RegisterModule("/lib/a.so")
	m := b.Build()
	if len(m.Modules) != 2 || m.Modules[0].Path != "/lib/z.so" || m.Modules[1].Path != "/lib/a.so" {
		t.Fatalf("expected modules in registration order, got %+v", m.Modules)
	}
}

func TestManifestMarshalJSONFieldNames(t *testing.T) {
	b := NewBuilder()
	b.RegisterSymbol("/lib/a.so", "f")
	m := b.Build()

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(out)
	for _, want := range []string{`"format_version"`, `"modules"`, `"symbols"`, `"function_id"`, `"symbol_index"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected marshaled manifest to contain %s, got %s", want, s)
		}
	}
}
