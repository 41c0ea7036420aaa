package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GoCodeAlone/modtree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

func runCycle(t *testing.T, observer *Observer, descs modtree.Descriptions) *modtree.Tree {
	t.Helper()
	tree, err := modtree.New(descs,
		modtree.WithName("shop"),
		modtree.WithLogger(nopLogger{}),
		modtree.WithObserver(observer),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	up, err := tree.Init(ctx)
	require.NoError(t, err)
	_ = up.Wait(ctx)
	require.NoError(t, tree.Deinit(ctx).Wait(ctx))
	return tree
}

func TestObserver_HealthyCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	observer := NewObserver(reg)

	runCycle(t, observer, modtree.Descriptions{
		"db":  {},
		"api": {Deps: []string{"db"}, Needed: true},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(observer.TreeState.WithLabelValues("shop", "down")))
	assert.Equal(t, 0.0, testutil.ToFloat64(observer.TreeState.WithLabelValues("shop", "up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(observer.ModuleState.WithLabelValues("shop", "api", "down")))
	assert.Equal(t, 0.0, testutil.ToFloat64(observer.ModuleState.WithLabelValues("shop", "api", "up")))

	for _, state := range []string{"initializing", "up", "deinitializing", "down"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(observer.TransitionsTotal.WithLabelValues("shop", "db", state)), state)
	}

	// One init and one deinit observation per module.
	assert.Equal(t, 4, testutil.CollectAndCount(observer.OperationDuration))
	assert.Zero(t, testutil.CollectAndCount(observer.ErrorsTotal))
}

func TestObserver_FailedCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	observer := NewObserver(reg)

	runCycle(t, observer, modtree.Descriptions{
		"db": {Deinit: func(context.Context) error { return errBoom }},
		"api": {
			Deps:   []string{"db"},
			Needed: true,
			Init:   func(context.Context, map[string]any) (any, error) { return nil, errBoom },
		},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(observer.ErrorsTotal.WithLabelValues("shop", "api", "init")))
	assert.Equal(t, 1.0, testutil.ToFloat64(observer.ErrorsTotal.WithLabelValues("shop", "db", "deinit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(observer.ModuleState.WithLabelValues("shop", "api", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(observer.ModuleState.WithLabelValues("shop", "db", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(observer.TreeState.WithLabelValues("shop", "down")))

	// db init ok, db deinit error, api init error.
	assert.Equal(t, 3, testutil.CollectAndCount(observer.OperationDuration))
}

func TestObserver_RejectsMalformedEvents(t *testing.T) {
	observer := NewObserver(prometheus.NewRegistry())
	assert.Equal(t, ObserverID, observer.ObserverID())

	event := modtree.NewCloudEvent(modtree.EventTypeModuleStateChanged, "shop", "db", nil)
	require.NoError(t, event.SetData("application/json", []byte("not json")))
	assert.Error(t, observer.OnEvent(context.Background(), event))

	ignored := modtree.NewCloudEvent("com.example.other", "shop", "", nil)
	assert.NoError(t, observer.OnEvent(context.Background(), ignored))
}

func TestNewObserver_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewObserver(reg)
	assert.Panics(t, func() { NewObserver(reg) })
}
