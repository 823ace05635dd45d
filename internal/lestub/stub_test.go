package lestub

import (
	"errors"
	"testing"
)

func TestLoadKnownProfile(t *testing.T) {
	data, err := Load("dos4gw", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(data) == 0 {
		t.Fatal("expected non-empty stub data")
	}
}

func TestLoadUnknownProfile(t *testing.T) {
	_, err := Load("nonexistent", "")
	if !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("expected ErrUnknownProfile, got %v", err)
	}
}

func TestLoadRejectsIncompatibleLoaderVersion(t *testing.T) {
	_, err := Load("os2", "1.5.0")
	if err == nil {
		t.Fatal("expected version constraint mismatch to error")
	}
}

func TestLoadAcceptsCompatibleLoaderVersion(t *testing.T) {
	if _, err := Load("os2", "2.1.0"); err != nil {
		t.Fatalf("expected compatible version to succeed, got %v", err)
	}
}

func TestNamesIncludesAllProfiles(t *testing.T) {
	names := Names()

	want := map[string]bool{"dos4gw": false, "pmodew": false, "os2": false}
	for _, n := range names {
		want[n] = true
	}

	for name, found := range want {
		if !found {
			t.Errorf("expected Names() to include %q", name)
		}
	}
}
