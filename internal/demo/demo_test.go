package demo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"select-plus/internal/admin"
	"select-plus/internal/config"
	"select-plus/internal/engine"
	"select-plus/internal/metadata"
	"select-plus/internal/resource"
	"select-plus/internal/selectplus"
	"select-plus/internal/store"
)

func TestCoffeeOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"title":"Black"},{"id":2,"title":"Latte"},{"id":3,"title":"Caramel Latte"}]`))
	}))
	defer srv.Close()

	provider := CoffeeOptions(srv.URL, time.Second)

	out, err := provider(selectplus.NewRequest(context.Background(), map[string]string{"search": "Latte"}))
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	options := out.([]selectplus.SelectionOption)
	if len(options) != 2 || options[0].Label != "Latte" || options[1].Value != 3 {
		t.Fatalf("unexpected options: %+v", options)
	}

	out, err = provider(selectplus.NewRequest(context.Background(), nil))
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if n := len(out.([]selectplus.SelectionOption)); n != 3 {
		t.Fatalf("expected the whole menu without a search, got %d", n)
	}
}

func TestCoffeeOptionsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := CoffeeOptions(srv.URL, time.Second)(selectplus.NewRequest(context.Background(), nil)); err == nil {
		t.Fatal("expected an error for a failing menu")
	}
}

func TestStoreCoffeeLabels(t *testing.T) {
	owner := &selectplus.Owner{Attributes: selectplus.Row{}}
	step, err := storeCoffeeLabels(nil, owner, "favorite_coffee", []selectplus.Selection{
		{Key: int64(2), Label: "Latte"}, {Key: int64(1), Label: "Black"},
	})
	if err != nil || step != nil {
		t.Fatalf("expected no step and no error, got %v, %v", step, err)
	}
	labels, _ := owner.Attributes["favorite_coffee"].([]string)
	if len(labels) != 2 || labels[0] != "Latte" || labels[1] != "Black" {
		t.Fatalf("unexpected stored labels: %v", owner.Attributes["favorite_coffee"])
	}
}

func TestNumericKeys(t *testing.T) {
	got := numericKeys([]any{int64(3), "12", "Texas", 4.0, nil})
	if len(got) != 3 || got[0] != int64(3) || got[1] != int64(12) || got[2] != 4.0 {
		t.Fatalf("unexpected keys: %v", got)
	}
	if numericKeys(nil) != nil {
		t.Fatal("expected nil for no keys")
	}
}

func TestRegionCodes(t *testing.T) {
	if got := regionCodes("west"); len(got) != 3 || got[0] != "CA" {
		t.Fatalf("unexpected west codes: %v", got)
	}
	if regionCodes("central") != nil {
		t.Fatal("central has no codes")
	}
}

func installedApp(t *testing.T) (*store.Store, *fiber.App) {
	t.Helper()
	ctx := context.Background()

	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "demo"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	reg := metadata.NewRegistry()
	if err := Install(ctx, admin.NewCatalog(s, reg)); err != nil {
		t.Fatalf("install: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := Seed(ctx, s); err != nil {
			t.Fatalf("seed #%d: %v", i+1, err)
		}
	}

	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	resources := resource.NewRegistry(People("http://127.0.0.1:0"))
	engine.RegisterRoutes(app, engine.NewHandler(s, reg, resources, selectplus.Settings{DefaultLabel: "name"}))
	return s, app
}

func TestInstallAndSeed(t *testing.T) {
	s, _ := installedApp(t)

	counts := map[string]int{"states": len(stateRows), "people": len(peopleRows)}
	cities := 0
	for _, names := range cityRows {
		cities += len(names)
	}
	counts["cities"] = cities

	for table, want := range counts {
		var got int
		if err := s.DB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&got); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if got != want {
			t.Fatalf("%s: expected %d rows after seeding twice, got %d", table, want, got)
		}
	}

	var joinTables int
	if err := s.DB.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('state_user_visited', 'state_user_lived_in')").Scan(&joinTables); err != nil {
		t.Fatalf("inspect schema: %v", err)
	}
	if joinTables != 2 {
		t.Fatalf("expected both join tables, found %d", joinTables)
	}
}

func TestPeopleOptions(t *testing.T) {
	_, app := installedApp(t)

	tests := []struct {
		name string
		path string
		want []string
	}{
		{
			name: "cities in the west",
			path: "/options/people/cities_visited?region=west",
			want: []string{"Eugene", "Los Angeles", "Portland", "San Diego", "San Francisco", "Seattle", "Spokane"},
		},
		{
			name: "cities in the west related to the birth state",
			path: "/options/people/cities_visited?region=west&state_born_in=" + stateID(t, app, "Oregon"),
			want: []string{"Eugene", "Portland"},
		},
		{
			name: "states lived in limited to L",
			path: "/options/people/statesLivedIn?only_certain_states=Yes",
			want: []string{"Louisiana"},
		},
		{
			name: "states lived in search takes two",
			path: "/options/people/statesLivedIn?search=New",
			want: []string{"New Hampshire", "New Jersey"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := labels(t, app, tc.path)
			sort.Strings(got)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func stateID(t *testing.T, app *fiber.App, name string) string {
	t.Helper()
	for _, o := range options(t, app, "/options/people/state_born_in?search="+name) {
		if o.Label == name {
			b, _ := json.Marshal(o.Key)
			return string(b)
		}
	}
	t.Fatalf("state %s not found", name)
	return ""
}

func labels(t *testing.T, app *fiber.App, path string) []string {
	t.Helper()
	var out []string
	for _, o := range options(t, app, path) {
		out = append(out, o.Label)
	}
	return out
}

func options(t *testing.T, app *fiber.App, path string) []selectplus.SelectionOption {
	t.Helper()
	req, err := http.NewRequest("GET", path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		t.Fatalf("%s: expected 200, got %d: %s", path, resp.StatusCode, body)
	}
	var out []selectplus.SelectionOption
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode options: %v", err)
	}
	return out
}

func TestPeopleFieldsMatchSchema(t *testing.T) {
	reg := metadata.NewRegistry()
	reg.Load(Entities(), Relations())
	resolver := selectplus.NewResolver(reg, nil, selectplus.Settings{DefaultLabel: "name"})
	people := reg.GetEntity("people")

	for _, f := range People("").Fields(selectplus.NewRequest(context.Background(), nil)) {
		if err := resolver.Validate(f, people); err != nil {
			t.Fatalf("%s: %v", f.Attribute(), err)
		}
		if f.IsReorderable() {
			if rel := reg.FindRelation("people", f.Attribute()); rel == nil || rel.OrderBy != f.ReorderColumn() {
				t.Fatalf("%s: reorder column %q is not the relation's order_by", f.Attribute(), f.ReorderColumn())
			}
		}
	}
}
