package meta

import (
	"errors"
	"strings"
	"testing"

	"github.com/franz/music-shelver/internal/util"
	"github.com/spf13/afero"
)

func TestLoadPreferences(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := `
metadata_version = 1

[defaults]
locale = "en_US"

[preferences]
"宇多田ヒカル" = "Hikaru Utada"
"Perfume" = ""
"  YOASOBI " = " Yoasobi "
`
	if err := afero.WriteFile(fs, "/cfg/prefs.toml", []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPreferences(fs, "/cfg/prefs.toml")
	if err != nil {
		t.Fatalf("LoadPreferences: %v", err)
	}

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"宇多田ヒカル", "Hikaru Utada", true},
		{"yoasobi", "Yoasobi", true},
		{" YOASOBI", "Yoasobi", true},
		{"Perfume", "", false},
		{"Unknown", "", false},
	}
	for _, tt := range tests {
		got, ok := p.Resolve(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
	if p.Len() != 2 {
		t.Errorf("expected 2 usable preferences, got %d", p.Len())
	}
}

func TestLoadPreferencesMissingFile(t *testing.T) {
	p, err := LoadPreferences(afero.NewMemMapFs(), "/nope/prefs.toml")
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if p.Len() != 0 {
		t.Errorf("expected empty preferences")
	}
}

func TestLoadPreferencesRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad toml":  "[preferences\n",
		"duplicate": "[preferences]\n\"Perfume\" = \"a\"\n\"perfume\" = \"b\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			afero.WriteFile(fs, "/p.toml", []byte(content), 0644)
			_, err := LoadPreferences(fs, "/p.toml")
			if !errors.Is(err, util.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestPreferencesPlaceholderRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	p, err := LoadPreferences(fs, "/cfg/prefs.toml")
	if err != nil {
		t.Fatal(err)
	}

	if !p.AddPlaceholder("米津玄師") {
		t.Fatal("expected new placeholder")
	}
	if p.AddPlaceholder("米津玄師") {
		t.Error("duplicate placeholder should not be added")
	}
	if err := p.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if p.Dirty() {
		t.Error("expected clean state after save")
	}

	data, err := afero.ReadFile(fs, "/cfg/prefs.toml")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "米津玄師") {
		t.Errorf("saved file missing placeholder:\n%s", data)
	}

	reloaded, err := LoadPreferences(fs, "/cfg/prefs.toml")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if names := reloaded.Names(); len(names) != 1 || names[0] != "米津玄師" {
		t.Errorf("unexpected names after reload: %v", names)
	}
	if _, ok := reloaded.Resolve("米津玄師"); ok {
		t.Error("placeholder must not resolve")
	}
}

func TestNilPreferencesAreSafe(t *testing.T) {
	var p *Preferences
	if _, ok := p.Resolve("x"); ok {
		t.Error("nil preferences should not resolve")
	}
	if p.AddPlaceholder("x") || p.Dirty() || p.Len() != 0 {
		t.Error("nil preferences should be inert")
	}
	if err := p.Save(); err != nil {
		t.Error(err)
	}
}
