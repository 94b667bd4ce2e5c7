package persona

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zixuanli/edge-sim/backend/internal/model/persona"
)

func TestListPersonas(t *testing.T) {
	r := chi.NewRouter()
	New(persona.NewMemoryStore(persona.Seed())).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/personas", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var personas []persona.Persona
	if err := json.Unmarshal(rec.Body.Bytes(), &personas); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(personas) != 6 {
		t.Fatalf("expected 6 personas, got %d", len(personas))
	}

	seen := make(map[persona.ID]bool)
	for _, p := range personas {
		if p.Name == "" || p.Description == "" {
			t.Fatalf("persona %s missing name or description", p.ID)
		}
		seen[p.ID] = true
	}
	if !seen[persona.WAF] || !seen[persona.ZeroTrust] {
		t.Fatalf("catalogue incomplete: %v", seen)
	}
}
