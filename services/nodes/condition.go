package nodes

import (
	"context"
	"fmt"
	"math"

	"nodeflow/services/node"
	"nodeflow/services/workflow"
)

type conditionSettings struct {
	Operator string `mapstructure:"operator"`
}

// conditionNode compares its "value" input against "threshold" using the
// configured operator. A value that is not a number is an expected failure.
type conditionNode struct {
	*node.Base
	cfg conditionSettings
}

func newCondition(id string, spec workflow.NodeSpec) node.Node {
	return &conditionNode{Base: node.NewBase(id, spec, node.ModeOnce)}
}

func (n *conditionNode) Initialize(ctx context.Context, _ *workflow.Graph, _ map[string]node.Node) error {
	if err := decodeSettings(settings(ctx, n.Base), &n.cfg); err != nil {
		return err
	}
	if n.cfg.Operator == "" {
		n.cfg.Operator = "greater_than"
	}
	if operatorSymbol(n.cfg.Operator) == "?" {
		return fmt.Errorf("%w: unknown operator %q", node.ErrConfiguration, n.cfg.Operator)
	}
	return nil
}

func (n *conditionNode) Execute(_ context.Context, ec *node.Context) (node.Outputs, error) {
	value, ok := toFloat64(n.Input("value", ec, nil))
	if !ok {
		return failure(fmt.Errorf("value is not a number")), nil
	}
	threshold, ok := toFloat64(n.Input("threshold", ec, 0))
	if !ok {
		return failure(fmt.Errorf("threshold is not a number")), nil
	}

	op := n.cfg.Operator
	result := evaluateCondition(value, op, threshold)

	var message string
	if result {
		message = fmt.Sprintf("%.1f is %s %.1f - condition met", value, operatorLabel(op), threshold)
	} else {
		message = fmt.Sprintf("%.1f is not %s %.1f - condition not met", value, operatorLabel(op), threshold)
	}

	return node.Outputs{
		"success":    true,
		"result":     result,
		"expression": fmt.Sprintf("%.1f %s %.1f", value, operatorSymbol(op), threshold),
		"message":    message,
	}, nil
}

// evaluateCondition compares value against threshold using the given operator.
// Both values are rounded to 1 decimal place to avoid floating-point precision issues.
func evaluateCondition(value float64, operator string, threshold float64) bool {
	v := math.Round(value*10) / 10
	th := math.Round(threshold*10) / 10

	switch operator {
	case "greater_than":
		return v > th
	case "less_than":
		return v < th
	case "equals":
		return v == th
	case "not_equals":
		return v != th
	case "greater_than_or_equal":
		return v >= th
	case "less_than_or_equal":
		return v <= th
	default:
		return false
	}
}

func operatorSymbol(op string) string {
	switch op {
	case "greater_than":
		return ">"
	case "less_than":
		return "<"
	case "equals":
		return "="
	case "not_equals":
		return "!="
	case "greater_than_or_equal":
		return ">="
	case "less_than_or_equal":
		return "<="
	default:
		return "?"
	}
}

func operatorLabel(op string) string {
	switch op {
	case "greater_than":
		return "greater than"
	case "less_than":
		return "less than"
	case "equals":
		return "equal to"
	case "not_equals":
		return "different from"
	case "greater_than_or_equal":
		return "greater than or equal to"
	case "less_than_or_equal":
		return "less than or equal to"
	default:
		return op
	}
}
