package device

import "testing"

func TestResultNullDistinctFromZero(t *testing.T) {
	r := Result{}
	r.Set("zero", 0)
	r.SetMissing("null")

	if v, ok := r.Value("zero"); !ok || v != 0 {
		t.Fatalf("Value(zero) = %v, %v; want 0, true", v, ok)
	}
	if _, ok := r.Value("null"); ok {
		t.Fatalf("Value(null) reported a reading")
	}
	if !r.Has("null") {
		t.Fatalf("Has(null) = false, want true")
	}
	if r.Has("absent") {
		t.Fatalf("Has(absent) = true, want false")
	}
	if got := r.Measured(); got != 1 {
		t.Fatalf("Measured = %d, want 1", got)
	}
}

func TestResultCloneIsDeep(t *testing.T) {
	r := Result{}
	r.Set("a", 1e-9)
	c := r.Clone()
	*c["a"] = 5
	if v, _ := r.Value("a"); v != 1e-9 {
		t.Fatalf("mutating clone changed original: %v", v)
	}
}

func TestListValidate(t *testing.T) {
	if err := Sequence("d", 3).Validate(); err != nil {
		t.Fatalf("Sequence list invalid: %v", err)
	}
	dup := List{{Key: "a", Index: 0}, {Key: "a", Index: 1}}
	if err := dup.Validate(); err == nil {
		t.Fatalf("expected duplicate key error")
	}
	badIndex := List{{Key: "a", Index: 3}}
	if err := badIndex.Validate(); err == nil {
		t.Fatalf("expected index mismatch error")
	}
}

func TestSessionOrderedKeys(t *testing.T) {
	s := &Session{Devices: FromKeys("d2", "d1"), Result: Result{}}
	s.Result.Set("d1", 1)
	s.Result.Set("extra", 2)
	got := s.OrderedKeys()
	want := []string{"d2", "d1", "extra"}
	if len(got) != len(want) {
		t.Fatalf("OrderedKeys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("OrderedKeys = %v, want %v", got, want)
		}
	}
}
