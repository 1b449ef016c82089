package profile

import (
	"errors"
	"reflect"
	"testing"
)

func TestNew(t *testing.T) {
	p, err := New(Config{
		Skills:            []string{"Python", " AWS ", "python", "", "Vue.js"},
		PreferredKeywords: []string{"Backend", "API"},
		ExcludedKeywords:  []string{"SAP", "Drupal", "sap"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := p.Skills(), []string{"python", "aws", "vue.js"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("skills: expected %v, got %v", want, got)
	}
	if got, want := p.PreferredKeywords(), []string{"backend", "api"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("preferred: expected %v, got %v", want, got)
	}
	if got, want := p.ExcludedKeywords(), []string{"sap", "drupal"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("excluded: expected %v, got %v", want, got)
	}

	if !p.HasSkill("PYTHON") || p.HasSkill("java") {
		t.Fatalf("HasSkill is not case-insensitive")
	}
}

func TestProfileIsImmutable(t *testing.T) {
	p, err := New(Config{Skills: []string{"Go"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	skills := p.Skills()
	skills[0] = "rust"

	if p.Skills()[0] != "go" {
		t.Fatalf("profile changed through returned slice")
	}
}

func TestNewEmpty(t *testing.T) {
	_, err := New(Config{ExcludedKeywords: []string{"SAP"}, Skills: []string{" "}})
	if !errors.Is(err, ErrEmptyProfile) {
		t.Fatalf("expected ErrEmptyProfile, got %v", err)
	}
}
