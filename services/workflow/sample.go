package workflow

// SampleWorkflowID identifies the seeded weather-alert workflow.
const SampleWorkflowID = "550e8400-e29b-41d4-a716-446655440000"

// SampleGraph returns the weather-alert workflow seeded on first start.
func SampleGraph() *Graph {
	return &Graph{
		ID:   SampleWorkflowID,
		Name: "Weather Alert Workflow",
		Nodes: []NodeSpec{
			{
				ID: "city", Type: "constant",
				Position: Position{X: -160, Y: 300},
				Inputs:   map[string]any{"value": "{{city}}"},
				Metadata: map[string]any{"label": "City"},
			},
			{
				ID: "weather-api", Type: "weather",
				Position: Position{X: 152, Y: 304},
				Metadata: map[string]any{
					"label": "Weather API",
					"options": []any{
						map[string]any{"city": "Sydney", "lat": -33.8688, "lon": 151.2093},
						map[string]any{"city": "Melbourne", "lat": -37.8136, "lon": 144.9631},
						map[string]any{"city": "Brisbane", "lat": -27.4698, "lon": 153.0251},
						map[string]any{"city": "Perth", "lat": -31.9505, "lon": 115.8605},
						map[string]any{"city": "Adelaide", "lat": -34.9285, "lon": 138.6007},
					},
				},
			},
			{
				ID: "check", Type: "condition",
				Position: Position{X: 460, Y: 304},
				Inputs:   map[string]any{"operator": "greater_than", "threshold": 25},
				Metadata: map[string]any{"label": "Check Condition"},
			},
			{
				ID: "alert", Type: "template",
				Position: Position{X: 794, Y: 304},
				Inputs: map[string]any{
					"template": "Weather alert for {{city}}! Temperature is {{temperature}}°C!",
				},
				Metadata: map[string]any{"label": "Compose Alert"},
			},
			{
				ID: "notify", Type: "log",
				Position: Position{X: 1096, Y: 88},
				Metadata: map[string]any{"label": "Send Alert"},
			},
		},
		Connections: []Connection{
			{SourceNode: "city", SourceOutput: "value", TargetNode: "weather-api", TargetInput: "city"},
			{SourceNode: "weather-api", SourceOutput: "temperature", TargetNode: "check", TargetInput: "value"},
			{SourceNode: "weather-api", SourceOutput: "temperature", TargetNode: "alert", TargetInput: "temperature"},
			{SourceNode: "city", SourceOutput: "value", TargetNode: "alert", TargetInput: "city"},
			{SourceNode: "alert", SourceOutput: "text", TargetNode: "notify", TargetInput: "message"},
			{SourceNode: "check", SourceOutput: "result", TargetNode: "notify", TargetInput: "when"},
		},
	}
}
