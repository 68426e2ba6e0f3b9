package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mealkitz/orderflow/pkg/domain"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	r := NewRegistry(domain.LangEnglish)

	got, err := r.Render(domain.LangEnglish, KeyOrderDelivered, map[string]string{
		"order_id":   "ord-42",
		"restaurant": "Mealkitz",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(got, "ord-42") || !strings.Contains(got, "Mealkitz") {
		t.Errorf("rendered body missing variables: %q", got)
	}
	if strings.Contains(got, "{") {
		t.Errorf("unresolved placeholder in %q", got)
	}
}

func TestRenderPerLanguage(t *testing.T) {
	r := NewRegistry(domain.LangEnglish)
	vars := map[string]string{"order_id": "ord-1", "restaurant": "Mealkitz"}

	for _, lang := range domain.SupportedLanguages() {
		t.Run(lang.String(), func(t *testing.T) {
			for _, key := range []Key{KeyWelcome, KeyDeliveryUpdate, KeyOrderDelivered, KeyKitchenNewOrder} {
				if _, err := r.Render(lang, key, vars); err != nil {
					t.Errorf("Render(%s, %s): %v", lang, key, err)
				}
			}
		})
	}

	es, _ := r.Render(domain.LangSpanish, KeyOrderDelivered, vars)
	en, _ := r.Render(domain.LangEnglish, KeyOrderDelivered, vars)
	if es == en {
		t.Error("spanish and english catalogs should differ")
	}
}

func TestRenderFallsBackToDefaultLanguage(t *testing.T) {
	r := NewRegistry(domain.LangEnglish)

	got, err := r.Render(domain.Language("fr"), KeyWelcome, map[string]string{"restaurant": "Mealkitz"})
	if err != nil {
		t.Fatalf("Render should fall back, got error: %v", err)
	}
	want, _ := r.Render(domain.LangEnglish, KeyWelcome, map[string]string{"restaurant": "Mealkitz"})
	if got != want {
		t.Errorf("fallback render = %q, want default-language body %q", got, want)
	}
}

func TestRenderUnknownKey(t *testing.T) {
	r := NewRegistry(domain.LangEnglish)
	if _, err := r.Render(domain.LangEnglish, Key("no_such_template"), nil); err == nil {
		t.Error("expected error for unknown template key")
	}
}

func TestLoadDirOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	pack := `language: es
templates:
  welcome: "Hola desde el pack"
  custom_greeting: "Saludos {name}"
`
	if err := os.WriteFile(filepath.Join(dir, "es.yaml"), []byte(pack), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(domain.LangEnglish)
	if err := r.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	got, err := r.Render(domain.LangSpanish, KeyWelcome, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Hola desde el pack" {
		t.Errorf("pack should override builtin, got %q", got)
	}

	custom, err := r.Render(domain.LangSpanish, Key("custom_greeting"), map[string]string{"name": "Ana"})
	if err != nil {
		t.Fatalf("Render custom: %v", err)
	}
	if custom != "Saludos Ana" {
		t.Errorf("custom template = %q", custom)
	}
}

func TestLoadDirMissingIsNotError(t *testing.T) {
	r := NewRegistry(domain.LangEnglish)
	if err := r.LoadDir(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Errorf("missing dir should be skipped, got %v", err)
	}
}
