package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// config holds the options shared by the telemetry middleware.
type config struct {
	// Operation identifies the wrapped component and prefixes span names.
	Operation string

	// GetOperation is an optional function that can set the span name based on the existing operation
	// and information in the context.
	//
	// If the function is nil, or the returned operation is empty, the existing operation is used.
	GetOperation func(ctx context.Context, operation string) string

	// Attributes holds the default attributes for each span created by this middleware.
	Attributes []attribute.KeyValue

	// GetAttributes is an optional function that can extract trace attributes
	// from the context and add them to the span.
	GetAttributes func(ctx context.Context) []attribute.KeyValue
}

func newConfig(operation string, options []Option) *config {
	cfg := &config{Operation: operation}
	for _, o := range options {
		o.apply(cfg)
	}
	return cfg
}

// spanName resolves the span name for name within the configured operation.
func (c *config) spanName(ctx context.Context, name string) string {
	op := c.Operation
	if c.GetOperation != nil {
		if got := c.GetOperation(ctx, op); got != "" {
			op = got
		}
	}
	if op == "" {
		return name
	}
	return op + "." + name
}

// attributes returns the static attributes followed by the ones extracted from ctx.
func (c *config) attributes(ctx context.Context, extra ...attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(c.Attributes)+len(extra))
	attrs = append(attrs, c.Attributes...)
	if c.GetAttributes != nil {
		attrs = append(attrs, c.GetAttributes(ctx)...)
	}
	return append(attrs, extra...)
}

// Option configures a telemetry middleware.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (o optionFunc) apply(c *config) {
	o(c)
}

// WithOperation sets the operation name used as span name prefix.
func WithOperation(operation string) Option {
	return optionFunc(func(o *config) {
		o.Operation = operation
	})
}

// WithOperationGetter sets an operation name getter function in config.
func WithOperationGetter(fn func(ctx context.Context, name string) string) Option {
	return optionFunc(func(o *config) {
		o.GetOperation = fn
	})
}

// WithAttributes sets the default attributes for the spans created by the middleware.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return optionFunc(func(o *config) {
		o.Attributes = attrs
	})
}

// WithAttributeGetter extracts additional attributes from the context.
func WithAttributeGetter(fn func(ctx context.Context) []attribute.KeyValue) Option {
	return optionFunc(func(o *config) {
		o.GetAttributes = fn
	})
}
