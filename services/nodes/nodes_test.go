package nodes

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodeflow/services/engine"
	"nodeflow/services/node"
	"nodeflow/services/storage"
	"nodeflow/services/workflow"
)

// mockWeatherClient implements WeatherClient for testing.
type mockWeatherClient struct {
	temperature float64
	err         error
	calls       int
	lat, lon    float64
}

func (m *mockWeatherClient) Current(_ context.Context, lat, lon float64) (Reading, error) {
	m.calls++
	m.lat, m.lon = lat, lon
	if m.err != nil {
		return Reading{}, m.err
	}
	return Reading{TemperatureC: m.temperature, WindSpeedKmh: 9, WeatherCode: 1}, nil
}

func construct(t *testing.T, deps Deps, spec workflow.NodeSpec) node.Node {
	t.Helper()
	reg := node.NewRegistry()
	require.NoError(t, RegisterAll(reg, deps))
	def, ok := reg.Lookup(spec.Type)
	require.True(t, ok, "type %q", spec.Type)
	return def.New(spec.ID, spec)
}

func newTestNode(t *testing.T, deps Deps, spec workflow.NodeSpec) node.Node {
	t.Helper()
	n := construct(t, deps, spec)
	require.NoError(t, n.Initialize(context.Background(), &workflow.Graph{}, nil))
	return n
}

func weatherSpec() workflow.NodeSpec {
	return workflow.NodeSpec{
		ID: "weather-api", Type: "weather",
		Metadata: map[string]any{
			"options": []any{
				map[string]any{"city": "Sydney", "lat": -33.8688, "lon": 151.2093},
				map[string]any{"city": "Melbourne", "lat": -37.8136, "lon": 144.9631},
			},
		},
	}
}

func TestRegisterAll_Idempotent(t *testing.T) {
	reg := node.NewRegistry()

	require.NoError(t, RegisterAll(reg, Deps{}))
	size := reg.Len()
	require.NoError(t, RegisterAll(reg, Deps{}))

	assert.Equal(t, size, reg.Len())
	assert.Equal(t, 14, size)

	aliases := map[string]node.ExecutionMode{
		"integration": node.ModeOnce,
		"timer":       node.ModeContinuous,
		"webhook":     node.ModeTriggered,
	}
	for alias, mode := range aliases {
		def, ok := reg.Lookup(alias)
		require.True(t, ok, alias)
		assert.Equal(t, mode, def.Mode, alias)
	}
}

func TestConstant_PreservesTypedTemplateValue(t *testing.T) {
	ec := node.NewContext(map[string]any{"city": "Sydney", "limit": 42}, nil)

	city := newTestNode(t, Deps{}, workflow.NodeSpec{ID: "c", Type: "constant", Inputs: map[string]any{"value": "{{city}}"}})
	out, err := city.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, "Sydney", out["value"])

	limit := newTestNode(t, Deps{}, workflow.NodeSpec{ID: "l", Type: "constant", Inputs: map[string]any{"value": "{{limit}}"}})
	out, err = limit.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, 42, out["value"])
}

func TestTemplate_RendersVariablesAndWiredInputs(t *testing.T) {
	ec := node.NewContext(map[string]any{"city": "Sydney"}, nil)
	ec.SetOutputs("weather-api", node.Outputs{"temperature": 28.5})

	n := newTestNode(t, Deps{}, workflow.NodeSpec{
		ID: "alert", Type: "template",
		Inputs: map[string]any{"template": "Alert for {{city}}: {{temperature}}°C {{missing}}"},
	})
	n.Connect("temperature", node.InputRef{NodeID: "weather-api", OutputName: "temperature"})

	out, err := n.Execute(context.Background(), ec)

	require.NoError(t, err)
	assert.Equal(t, "Alert for Sydney: 28.5°C {{missing}}", out["text"])
}

func TestCondition_AllOperators(t *testing.T) {
	tests := []struct {
		operator  string
		value     float64
		threshold float64
		want      bool
	}{
		{"greater_than", 30, 25, true},
		{"greater_than", 20, 25, false},
		{"less_than", 20, 25, true},
		{"less_than", 30, 25, false},
		{"equals", 25, 25, true},
		{"equals", 25.1, 25, false},
		{"not_equals", 25.1, 25, true},
		{"greater_than_or_equal", 25, 25, true},
		{"less_than_or_equal", 25, 25, true},
		{"less_than_or_equal", 26, 25, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%.1f_%.1f", tt.operator, tt.value, tt.threshold), func(t *testing.T) {
			n := newTestNode(t, Deps{}, workflow.NodeSpec{
				ID: "check", Type: "condition",
				Inputs: map[string]any{"operator": tt.operator, "threshold": tt.threshold, "value": tt.value},
			})

			out, err := n.Execute(context.Background(), node.NewContext(nil, nil))

			require.NoError(t, err)
			assert.Equal(t, true, out["success"])
			assert.Equal(t, tt.want, out["result"])
			assert.NotEmpty(t, out["expression"])
		})
	}
}

func TestCondition_WiredValue(t *testing.T) {
	ec := node.NewContext(nil, nil)
	ec.SetOutputs("weather-api", node.Outputs{"temperature": 28.5})

	n := newTestNode(t, Deps{}, workflow.NodeSpec{ID: "check", Type: "condition", Inputs: map[string]any{"threshold": "25"}})
	n.Connect("value", node.InputRef{NodeID: "weather-api", OutputName: "temperature"})

	out, err := n.Execute(context.Background(), ec)

	require.NoError(t, err)
	assert.Equal(t, true, out["result"])
	assert.Equal(t, "28.5 > 25.0", out["expression"])
}

func TestCondition_MissingValue(t *testing.T) {
	n := newTestNode(t, Deps{}, workflow.NodeSpec{ID: "check", Type: "condition"})

	out, err := n.Execute(context.Background(), node.NewContext(nil, nil))

	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "not a number")
	assert.NotContains(t, out, "result")
}

func TestCondition_UnknownOperator(t *testing.T) {
	n := construct(t, Deps{}, workflow.NodeSpec{ID: "check", Type: "condition", Inputs: map[string]any{"operator": "roughly"}})

	err := n.Initialize(context.Background(), &workflow.Graph{}, nil)

	assert.ErrorIs(t, err, node.ErrConfiguration)
}

func TestEvaluateCondition_FloatRounding(t *testing.T) {
	assert.True(t, evaluateCondition(0.1+0.2, "equals", 0.3))
	assert.False(t, evaluateCondition(1, "unknown", 1))
}

func TestLog_RespectsGate(t *testing.T) {
	var buf bytes.Buffer
	ec := node.NewContext(nil, nil)
	ec.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	n := newTestNode(t, Deps{}, workflow.NodeSpec{ID: "notify", Type: "log", Inputs: map[string]any{"message": "hot today"}})

	out, err := n.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, true, out["logged"])
	assert.Contains(t, buf.String(), "hot today")

	buf.Reset()
	ec.SetOutputs("check", node.Outputs{"result": false})
	n.Connect("when", node.InputRef{NodeID: "check", OutputName: "result"})

	out, err = n.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, false, out["logged"])
	assert.Empty(t, buf.String())
}

func TestWeather_Success(t *testing.T) {
	client := &mockWeatherClient{temperature: 28.5}
	ec := node.NewContext(nil, nil)
	ec.SetOutputs("city", node.Outputs{"value": "sydney"})

	n := newTestNode(t, Deps{Weather: client}, weatherSpec())
	n.Connect("city", node.InputRef{NodeID: "city", OutputName: "value"})

	out, err := n.Execute(context.Background(), ec)

	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 28.5, out["temperature"])
	assert.Equal(t, 9.0, out["windSpeed"])
	assert.Equal(t, 1, out["weatherCode"])
	assert.Equal(t, -33.8688, client.lat)
	assert.Equal(t, 151.2093, client.lon)
	assert.Contains(t, out["message"], "28.5")
}

func TestWeather_ExplicitCoordinates(t *testing.T) {
	client := &mockWeatherClient{temperature: 12}
	n := newTestNode(t, Deps{Weather: client}, workflow.NodeSpec{
		ID: "w", Type: "integration",
		Inputs: map[string]any{"city": "Oslo", "lat": 59.91, "lon": 10.75},
	})

	out, err := n.Execute(context.Background(), node.NewContext(nil, nil))

	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 59.91, client.lat)
}

func TestWeather_ExpectedFailures(t *testing.T) {
	tests := []struct {
		name    string
		deps    Deps
		city    string
		wantErr string
	}{
		{"no client", Deps{}, "Sydney", "no weather client"},
		{"unknown city", Deps{Weather: &mockWeatherClient{}}, "Atlantis", "not found"},
		{"api error", Deps{Weather: &mockWeatherClient{err: fmt.Errorf("connection refused")}}, "Sydney", "connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := weatherSpec()
			spec.Inputs = map[string]any{"city": tt.city}
			n := newTestNode(t, tt.deps, spec)

			out, err := n.Execute(context.Background(), node.NewContext(nil, nil))

			require.NoError(t, err)
			assert.Equal(t, false, out["success"])
			assert.Contains(t, out["error"], tt.wantErr)
			assert.NotContains(t, out, "temperature")
		})
	}
}

func TestStorageNodes(t *testing.T) {
	ctx := context.Background()
	ec := node.NewContext(map[string]any{"user": "u-1"}, storage.NewMemory())

	save := newTestNode(t, Deps{}, workflow.NodeSpec{ID: "save", Type: "storage_save", Inputs: map[string]any{
		"userId": "{{user}}",
		"data":   map[string]any{"city": "Perth"},
	}})
	out, err := save.Execute(ctx, ec)
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])

	get := newTestNode(t, Deps{}, workflow.NodeSpec{ID: "get", Type: "storage_get", Inputs: map[string]any{"userId": "u-1"}})
	out, err = get.Execute(ctx, ec)
	require.NoError(t, err)
	assert.Equal(t, true, out["found"])
	assert.Equal(t, map[string]any{"city": "Perth"}, out["data"])

	logNode := newTestNode(t, Deps{}, workflow.NodeSpec{ID: "log", Type: "storage_log", Inputs: map[string]any{
		"userId":  "u-1",
		"message": "checked weather",
	}})
	_, err = logNode.Execute(ctx, ec)
	require.NoError(t, err)
	out, err = logNode.Execute(ctx, ec)
	require.NoError(t, err)
	entries, ok := out["entries"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, "checked weather", entries[1]["message"])

	missing := newTestNode(t, Deps{}, workflow.NodeSpec{ID: "get2", Type: "storage_get", Inputs: map[string]any{"userId": "nobody"}})
	out, err = missing.Execute(ctx, ec)
	require.NoError(t, err)
	assert.Equal(t, false, out["found"])
}

func TestStorageNodes_NoStorage(t *testing.T) {
	for _, typ := range []string{"storage_save", "storage_get", "storage_log"} {
		n := newTestNode(t, Deps{}, workflow.NodeSpec{ID: "s", Type: typ, Inputs: map[string]any{"userId": "u-1"}})

		out, err := n.Execute(context.Background(), node.NewContext(nil, nil))

		require.NoError(t, err)
		assert.Equal(t, false, out["success"], typ)
	}
}

func TestInterval_FiresEveryNTicksUpToLimit(t *testing.T) {
	n := newTestNode(t, Deps{}, workflow.NodeSpec{ID: "timer", Type: "timer", Inputs: map[string]any{
		"every": 2, "maxFirings": 2, "value": "ping",
	}})
	ticker, ok := n.(node.Ticker)
	require.True(t, ok)
	ec := node.NewContext(nil, nil)

	var firedOn []int
	for i := 1; i <= 8; i++ {
		out, err := ticker.OnTick(context.Background(), ec)
		require.NoError(t, err)
		if out != nil {
			firedOn = append(firedOn, i)
			assert.Equal(t, "ping", out["value"])
		}
	}
	assert.Equal(t, []int{2, 4}, firedOn)
}

func TestInterval_RejectsNegativeSettings(t *testing.T) {
	n := construct(t, Deps{}, workflow.NodeSpec{ID: "timer", Type: "interval", Inputs: map[string]any{"every": -1}})
	assert.ErrorIs(t, n.Initialize(context.Background(), &workflow.Graph{}, nil), node.ErrConfiguration)
}

func TestInterval_SettingsResolveRunVariables(t *testing.T) {
	n := construct(t, Deps{}, workflow.NodeSpec{ID: "timer", Type: "interval", Inputs: map[string]any{"every": "{{n}}"}})
	ctx := node.WithVariables(context.Background(), map[string]any{"n": 3})
	require.NoError(t, n.Initialize(ctx, &workflow.Graph{}, nil))

	ticker := n.(node.Ticker)
	ec := node.NewContext(nil, nil)
	var firedOn []int
	for i := 1; i <= 7; i++ {
		out, err := ticker.OnTick(context.Background(), ec)
		require.NoError(t, err)
		if out != nil {
			firedOn = append(firedOn, i)
		}
	}
	assert.Equal(t, []int{3, 6}, firedOn)
}

func TestInterval_RunVariablesReachInitialize(t *testing.T) {
	reg := node.NewRegistry()
	require.NoError(t, RegisterAll(reg, Deps{}))
	g := &workflow.Graph{ID: "wf", Nodes: []workflow.NodeSpec{
		{ID: "iv", Type: "interval", Inputs: map[string]any{"every": "{{n}}"}},
	}}
	run, err := engine.NewEngine(reg).Prepare(g, engine.RunOptions{Variables: map[string]any{"n": 2}})
	require.NoError(t, err)
	defer run.Stop()

	ctx := context.Background()
	steps, err := run.Initialize(ctx)
	require.NoError(t, err)
	assert.Empty(t, steps)

	assert.Empty(t, run.Tick(ctx).Fired)
	assert.Equal(t, []string{"iv"}, run.Tick(ctx).Fired)
}

func TestInterval_UnresolvedSettingTemplate(t *testing.T) {
	n := construct(t, Deps{}, workflow.NodeSpec{ID: "timer", Type: "interval", Inputs: map[string]any{"every": "{{n}}"}})
	assert.ErrorIs(t, n.Initialize(context.Background(), &workflow.Graph{}, nil), node.ErrConfiguration)
}

func TestIntervalFeedingManualTrigger_RunsOnlyWhenTriggered(t *testing.T) {
	reg := node.NewRegistry()
	require.NoError(t, RegisterAll(reg, Deps{}))
	g := &workflow.Graph{
		ID: "wf",
		Nodes: []workflow.NodeSpec{
			{ID: "iv", Type: "interval", Inputs: map[string]any{"value": 1}},
			{ID: "hook", Type: "manual_trigger"},
		},
		Connections: []workflow.Connection{
			{SourceNode: "iv", SourceOutput: "value", TargetNode: "hook", TargetInput: "payload"},
		},
	}
	run, err := engine.NewEngine(reg).Prepare(g, engine.RunOptions{})
	require.NoError(t, err)
	defer run.Stop()

	ctx := context.Background()
	_, err = run.Initialize(ctx)
	require.NoError(t, err)
	run.Pass(ctx)

	for i := 1; i <= 3; i++ {
		res := run.Tick(ctx)
		assert.Equal(t, []string{"iv"}, res.Fired, "tick %d", i)
		assert.Len(t, res.Steps, 1, "tick %d", i)
	}
	_, present := run.Context().Outputs("hook")
	assert.False(t, present, "hook ran without being triggered")

	require.NoError(t, run.Trigger("hook"))
	res := run.Tick(ctx)
	assert.Equal(t, []string{"iv", "hook"}, res.Fired)

	count, _ := run.Context().Output("hook", "count")
	payload, _ := run.Context().Output("hook", "payload")
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, payload)
}

func TestManualTrigger_CountsFirings(t *testing.T) {
	n := newTestNode(t, Deps{}, workflow.NodeSpec{ID: "hook", Type: "webhook", Inputs: map[string]any{"payload": "{{who}}"}})
	ec := node.NewContext(map[string]any{"who": "ops"}, nil)

	_, err := n.Execute(context.Background(), ec)
	require.NoError(t, err)
	out, err := n.Execute(context.Background(), ec)
	require.NoError(t, err)

	assert.Equal(t, int64(2), out["count"])
	assert.Equal(t, "ops", out["payload"])
	assert.Equal(t, node.ModeTriggered, n.Mode())
}

func TestSampleWorkflow_EndToEnd(t *testing.T) {
	tests := []struct {
		name        string
		temperature float64
		wantLogged  bool
	}{
		{"above threshold", 30, true},
		{"below threshold", 18, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := node.NewRegistry()
			require.NoError(t, RegisterAll(reg, Deps{Weather: &mockWeatherClient{temperature: tt.temperature}}))

			run, err := engine.NewEngine(reg).Prepare(workflow.SampleGraph(), engine.RunOptions{
				Variables: map[string]any{"city": "Sydney"},
			})
			require.NoError(t, err)
			defer run.Stop()

			_, err = run.Initialize(context.Background())
			require.NoError(t, err)
			res := run.Pass(context.Background())
			assert.Empty(t, res.Failed())

			text, _ := run.Context().Output("alert", "text")
			assert.Equal(t, fmt.Sprintf("Weather alert for Sydney! Temperature is %v°C!", tt.temperature), text)

			logged, _ := run.Context().Output("notify", "logged")
			assert.Equal(t, tt.wantLogged, logged)
		})
	}
}
