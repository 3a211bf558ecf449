package nodes

import (
	"context"
	"fmt"
	"strings"

	"nodeflow/services/node"
	"nodeflow/services/workflow"
)

type cityOption struct {
	City string  `mapstructure:"city"`
	Lat  float64 `mapstructure:"lat"`
	Lon  float64 `mapstructure:"lon"`
}

type weatherSettings struct {
	Options []cityOption `mapstructure:"options"`
}

// weatherNode looks up the coordinates of its "city" input among the
// configured options, or takes explicit "lat"/"lon" inputs, and fetches the
// current conditions.
type weatherNode struct {
	*node.Base
	client WeatherClient
	cfg    weatherSettings
}

func weatherConstructor(client WeatherClient) node.Constructor {
	return func(id string, spec workflow.NodeSpec) node.Node {
		return &weatherNode{Base: node.NewBase(id, spec, node.ModeOnce), client: client}
	}
}

func (n *weatherNode) Initialize(ctx context.Context, _ *workflow.Graph, _ map[string]node.Node) error {
	return decodeSettings(settings(ctx, n.Base), &n.cfg)
}

func (n *weatherNode) Execute(ctx context.Context, ec *node.Context) (node.Outputs, error) {
	if n.client == nil {
		return failure(fmt.Errorf("no weather client configured")), nil
	}

	city := n.InputString("city", ec, "")
	lat, lon, err := n.coordinates(city, ec)
	if err != nil {
		return failure(err), nil
	}

	reading, err := n.client.Current(ctx, lat, lon)
	if err != nil {
		return failure(fmt.Errorf("weather API error: %w", err)), nil
	}

	return node.Outputs{
		"success":     true,
		"message":     fmt.Sprintf("Current temperature in %s: %.1f°C", city, reading.TemperatureC),
		"temperature": reading.TemperatureC,
		"windSpeed":   reading.WindSpeedKmh,
		"weatherCode": reading.WeatherCode,
		"observedAt":  reading.ObservedAt,
		"location":    city,
		"latitude":    lat,
		"longitude":   lon,
	}, nil
}

func (n *weatherNode) coordinates(city string, ec *node.Context) (float64, float64, error) {
	lat, okLat := toFloat64(n.Input("lat", ec, nil))
	lon, okLon := toFloat64(n.Input("lon", ec, nil))
	if okLat && okLon {
		return lat, lon, nil
	}

	for _, opt := range n.cfg.Options {
		if strings.EqualFold(opt.City, city) {
			return opt.Lat, opt.Lon, nil
		}
	}
	return 0, 0, fmt.Errorf("city %q not found in available options", city)
}
