package cost

import "context"

type labelsKey struct{}

// Labels describe the request a usage record belongs to.
type Labels struct {
	RequestID string
	Kind      Kind
	Model     string
}

// ContextWithLabels attaches request labels for RecordUsage to pick up.
func ContextWithLabels(ctx context.Context, labels Labels) context.Context {
	return context.WithValue(ctx, labelsKey{}, labels)
}

// LabelsFromContext returns the labels attached to ctx, or zero Labels.
func LabelsFromContext(ctx context.Context) Labels {
	if ctx == nil {
		return Labels{}
	}
	labels, _ := ctx.Value(labelsKey{}).(Labels)
	return labels
}
