package utils

import "context"

type contextKey string

const contextKeyCorrelationId contextKey = "correlationId"

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(contextKeyCorrelationId).(string)
	return val, ok
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return context.WithValue(ctx, contextKeyCorrelationId, correlationId)
}
