package ctxutil

import "context"

type operatorKey struct{}

// Operator identifies the admin who issued a request, taken from the bearer token subject.
type Operator struct {
	Subject string
}

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

func GetOperator(ctx context.Context) *Operator {
	if ctx == nil {
		return nil
	}
	if op, ok := ctx.Value(operatorKey{}).(*Operator); ok {
		return op
	}
	return nil
}
