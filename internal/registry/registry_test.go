package registry

import (
	"errors"
	"testing"
)

type classifier struct{ name string }

func TestRegisterAndCreate(t *testing.T) {
	r := New[*classifier]("classifier")
	r.Register("hamming", "Hamming distance", func() (*classifier, error) {
		return &classifier{name: "hamming"}, nil
	})

	if !r.Exists("hamming") {
		t.Fatal("expected hamming to exist")
	}
	c, err := r.Create("hamming")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if c.name != "hamming" {
		t.Errorf("Create() name = %q, expected %q", c.name, "hamming")
	}

	// Each call builds a fresh instance.
	c2, _ := r.Create("hamming")
	if c == c2 {
		t.Error("expected distinct instances")
	}
}

func TestCreateUnknown(t *testing.T) {
	r := New[int]("source")
	if _, err := r.Create("missing"); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestCreateFactoryError(t *testing.T) {
	boom := errors.New("boom")
	r := New[int]("source")
	r.Register("bad", "Bad", func() (int, error) { return 0, boom })

	if _, err := r.Create("bad"); !errors.Is(err, boom) {
		t.Errorf("Create() error = %v, expected wrapped %v", err, boom)
	}
}

func TestListSorted(t *testing.T) {
	r := New[int]("source")
	for _, id := range []string{"watch", "dir", "image"} {
		r.Register(id, id, func() (int, error) { return 0, nil })
	}

	list := r.List()
	expected := []string{"dir", "image", "watch"}
	if len(list) != len(expected) {
		t.Fatalf("List() len = %d, expected %d", len(list), len(expected))
	}
	for i, info := range list {
		if info.ID != expected[i] {
			t.Errorf("List()[%d] = %q, expected %q", i, info.ID, expected[i])
		}
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := New[int]("source")
	r.Register("dir", "Directory", func() (int, error) { return 0, nil })

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	r.Register("dir", "Directory", func() (int, error) { return 0, nil })
}
