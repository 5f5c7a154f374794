package plugin

import (
	"testing"

	"github.com/ehr/hl7deid/internal/platform/deid"
	"github.com/ehr/hl7deid/internal/platform/hl7v2"
)

func testGenerator(name string) deid.Generator {
	return deid.NewGeneratorFunc(name, func(item deid.Item, _ deid.Context) (string, error) {
		return name + ":" + item.Value(), nil
	})
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(testGenerator("test-generator")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gens := reg.Generators()
	if len(gens) != 1 {
		t.Fatalf("expected 1 generator, got %d", len(gens))
	}
	if gens[0].Name() != "test-generator" {
		t.Errorf("expected test-generator, got %s", gens[0].Name())
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(testGenerator("alpha"))

	if err := reg.Register(testGenerator("alpha")); err == nil {
		t.Error("expected error for duplicate name")
	}
	if err := reg.Register(testGenerator("")); err == nil {
		t.Error("expected error for empty name")
	}
	if err := reg.Register(nil); err == nil {
		t.Error("expected error for nil generator")
	}
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(testGenerator("alpha"))

	defer func() {
		if recover() == nil {
			t.Error("expected MustRegister to panic on duplicate")
		}
	}()
	reg.MustRegister(testGenerator("alpha"))
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(testGenerator("alpha"))

	g, ok := reg.Lookup("alpha")
	if !ok {
		t.Fatal("expected alpha to be found")
	}
	out, err := g.Generate(valueItem("x"), deid.Context{})
	if err != nil || out != "alpha:x" {
		t.Errorf("expected 'alpha:x', got %q (%v)", out, err)
	}

	if _, ok := reg.Lookup("missing"); ok {
		t.Error("expected missing generator not to be found")
	}
}

func TestRegistry_Empty(t *testing.T) {
	reg := NewRegistry()

	if len(reg.Generators()) != 0 {
		t.Error("expected 0 generators")
	}
	if len(reg.Names()) != 0 {
		t.Error("expected 0 names")
	}
}

func TestRegistry_MultipleGenerators(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(testGenerator("beta"), testGenerator("alpha"))

	gens := reg.Generators()
	if len(gens) != 2 || gens[0].Name() != "beta" {
		t.Fatalf("expected registration order, got %d generators", len(gens))
	}
	names := reg.Names()
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestRegistry_ServesEngine(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(testGenerator("Last"))

	msg, err := hl7Message()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := []*deid.ConfigItem{{ID: "PID-5.1", Generator: "Last"}}

	out, err := deid.DeIdentify(msg, items, reg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if family, _ := out.PatientName(); family != "Last:SMITH" {
		t.Errorf("expected 'Last:SMITH', got %q", family)
	}
}

func hl7Message() (*hl7v2.Message, error) {
	return hl7v2.ParseString("MSH|^~\\&|App|Fac|||20240115120000||ADT^A01|C1|P|2.5.1\rPID|1||12345||SMITH^JOHN||19800101|M")
}

type valueItem string

func (v valueItem) Value() string { return string(v) }
