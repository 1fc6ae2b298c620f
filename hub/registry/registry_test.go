package registry

import "testing"

func TestLookupReturnsRegisteredUnit(t *testing.T) {
	r := New()
	unit := &struct{ name string }{name: "calendar"}
	r.Register("calendar", unit)

	got, ok := r.Lookup("calendar")
	if !ok {
		t.Fatal("Expected lookup to succeed")
	}
	if got != unit {
		t.Error("Expected the registered unit back")
	}

	if _, ok := r.Lookup("ghost"); ok {
		t.Error("Expected lookup of unregistered module to fail")
	}
}

func TestRegisterReplacesBinding(t *testing.T) {
	r := New()
	r.Register("calendar", "first")
	r.Register("calendar", "second")

	got, _ := r.Lookup("calendar")
	if got != "second" {
		t.Errorf("Expected replacement binding, got %v", got)
	}
}

func TestModulesSorted(t *testing.T) {
	r := New()
	r.Register("zeta", nil)
	r.Register("alpha", nil)
	r.Register("mid", nil)

	modules := r.Modules()
	expected := []string{"alpha", "mid", "zeta"}
	for i := range expected {
		if modules[i] != expected[i] {
			t.Fatalf("Expected sorted modules %v, got %v", expected, modules)
		}
	}
}
