package plugin

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/perquyk/snutz/pkg/plugin"
)

// testModule is a minimal module for registry tests.
type testModule struct {
	name    string
	initErr error
	started bool
	stopped int
	config  *viper.Viper

	stopOrder *[]string
}

func (m *testModule) Name() string    { return m.name }
func (m *testModule) Version() string { return "1.0.0" }

func (m *testModule) Init(config *viper.Viper, _ *zap.Logger) error {
	m.config = config
	return m.initErr
}

func (m *testModule) Start(_ context.Context) error {
	m.started = true
	return nil
}

func (m *testModule) Stop() error {
	m.stopped++
	if m.stopOrder != nil {
		*m.stopOrder = append(*m.stopOrder, m.name)
	}
	return nil
}

// testHTTPModule also provides routes.
type testHTTPModule struct {
	testModule
	routes []plugin.Route
}

func (m *testHTTPModule) Routes() []plugin.Route { return m.routes }

func TestRegister(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	if err := reg.Register(&testModule{name: "alpha"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Get("alpha") == nil {
		t.Error("Get(alpha) = nil after Register")
	}
	if reg.Get("beta") != nil {
		t.Error("Get(beta) != nil, want nil for unregistered name")
	}
}

func TestRegister_DuplicateName(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	if err := reg.Register(&testModule{name: "alpha"}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := reg.Register(&testModule{name: "alpha"}); err == nil {
		t.Fatal("duplicate Register succeeded, want error")
	}
}

func TestInitAll_PassesScopedConfig(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	m := &testModule{name: "fleet"}
	if err := reg.Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}

	config := viper.New()
	config.Set("modules.fleet.offline_after", "90s")
	if err := reg.InitAll(config); err != nil {
		t.Fatalf("InitAll: %v", err)
	}

	if m.config == nil {
		t.Fatal("module config is nil")
	}
	if got := m.config.GetString("offline_after"); got != "90s" {
		t.Errorf("offline_after = %q, want %q (scoped to modules.fleet)", got, "90s")
	}
}

func TestInitAll_MissingSectionGetsEmptyConfig(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	m := &testModule{name: "fleet"}
	if err := reg.Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := reg.InitAll(viper.New()); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if m.config == nil {
		t.Error("module config is nil, want empty viper")
	}
}

func TestInitAll_PropagatesError(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	wantErr := errors.New("bad config")
	if err := reg.Register(&testModule{name: "alpha", initErr: wantErr}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := reg.InitAll(viper.New())
	if !errors.Is(err, wantErr) {
		t.Fatalf("InitAll err = %v, want wrapped %v", err, wantErr)
	}
}

func TestStartAllAndStopAll(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	var stopOrder []string
	a := &testModule{name: "alpha", stopOrder: &stopOrder}
	b := &testModule{name: "beta", stopOrder: &stopOrder}
	for _, m := range []*testModule{a, b} {
		if err := reg.Register(m); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !a.started || !b.started {
		t.Error("not all modules started")
	}

	reg.StopAll()
	if a.stopped != 1 || b.stopped != 1 {
		t.Errorf("stop counts = %d/%d, want 1/1", a.stopped, b.stopped)
	}
	if len(stopOrder) != 2 || stopOrder[0] != "beta" || stopOrder[1] != "alpha" {
		t.Errorf("stop order = %v, want reverse registration order", stopOrder)
	}
}

func TestAll_PreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	for _, name := range []string{"charlie", "alpha", "beta"} {
		if err := reg.Register(&testModule{name: name}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	all := reg.All()
	want := []string{"charlie", "alpha", "beta"}
	if len(all) != len(want) {
		t.Fatalf("len(all) = %d, want %d", len(all), len(want))
	}
	for i := range want {
		if all[i].Name() != want[i] {
			t.Errorf("all[%d] = %q, want %q", i, all[i].Name(), want[i])
		}
	}
}

func TestAllRoutes_OnlyHTTPProviders(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	httpMod := &testHTTPModule{
		testModule: testModule{name: "fleet"},
		routes: []plugin.Route{
			{Method: "GET", Path: "/devices", Handler: func(http.ResponseWriter, *http.Request) {}},
		},
	}
	plain := &testModule{name: "plain"}
	if err := reg.Register(httpMod); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(plain); err != nil {
		t.Fatalf("Register: %v", err)
	}

	routes := reg.AllRoutes()
	if len(routes) != 1 {
		t.Fatalf("len(routes) = %d, want 1", len(routes))
	}
	if len(routes["fleet"]) != 1 {
		t.Errorf("len(routes[fleet]) = %d, want 1", len(routes["fleet"]))
	}
	if _, ok := routes["plain"]; ok {
		t.Error("routes includes non-HTTP module")
	}
}
