package errors_test

import (
	"errors"
	"testing"

	liberr "github.com/nabbar/l4lb/internal/errors"
)

const codeSample liberr.CodeError = liberr.MinPkgBackend + 1

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgBackend, func(code liberr.CodeError) string {
		if code == codeSample {
			return "sample failure"
		}
		return ""
	})
}

func TestNewCarriesCode(t *testing.T) {
	e := liberr.New(codeSample)
	if !e.IsCode(codeSample) {
		t.Fatalf("expected code %d, got %d", codeSample, e.Code())
	}
	if e.Error() != "sample failure" {
		t.Fatalf("unexpected message: %q", e.Error())
	}
}

func TestAddParentChaining(t *testing.T) {
	root := errors.New("dial refused")
	e := liberr.New(codeSample, root)

	if !e.HasParent() {
		t.Fatal("expected HasParent to be true")
	}
	if got := e.GetParent(); len(got) != 1 || got[0] != root {
		t.Fatalf("unexpected parent slice: %v", got)
	}
	if e.Error() != "sample failure: dial refused" {
		t.Fatalf("unexpected combined message: %q", e.Error())
	}
}

func TestHasCodeWalksParents(t *testing.T) {
	inner := liberr.New(codeSample)
	outer := liberr.New(liberr.MinPkgBackend+2, inner)

	if !outer.HasCode(codeSample) {
		t.Fatal("expected HasCode to find the code on a parent")
	}
	if !liberr.HasCode(outer, codeSample) {
		t.Fatal("expected package-level HasCode helper to agree")
	}
}

func TestGetAndIs(t *testing.T) {
	e := liberr.New(codeSample)
	var plain error = e

	if !liberr.Is(plain) {
		t.Fatal("expected Is to recognize the Error")
	}
	if liberr.Get(plain) == nil {
		t.Fatal("expected Get to return the Error")
	}
	if liberr.Get(errors.New("not ours")) != nil {
		t.Fatal("expected Get to return nil for a plain error")
	}
}
