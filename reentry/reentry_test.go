package reentry

import (
	"errors"
	"testing"

	"github.com/blockberries/dao"
)

func TestGuardRejectsNestedEntry(t *testing.T) {
	g := New("execute")
	release, err := g.Enter()
	if err != nil {
		t.Fatalf("first Enter: %v", err)
	}
	if !g.Busy() {
		t.Fatal("guard should be busy")
	}
	if _, err := g.Enter(); !errors.Is(err, dao.ErrReentrant) {
		t.Fatalf("nested Enter: got %v, want ErrReentrant", err)
	}
	release()
	if g.Busy() {
		t.Fatal("guard should be released")
	}
	release2, err := g.Enter()
	if err != nil {
		t.Fatalf("Enter after release: %v", err)
	}
	release2()
}

func TestGuardReleasedOnPanic(t *testing.T) {
	var g Guard
	func() {
		defer func() { _ = recover() }()
		release, err := g.Enter()
		if err != nil {
			t.Fatalf("Enter: %v", err)
		}
		defer release()
		panic("boom")
	}()
	if g.Busy() {
		t.Fatal("deferred release did not run")
	}
}

func TestGuardErrorKind(t *testing.T) {
	var g Guard
	release, _ := g.Enter()
	defer release()
	_, err := g.Enter()
	if !errors.Is(err, dao.ErrInvalidState) {
		t.Fatalf("got %v, want an ErrInvalidState", err)
	}
}
