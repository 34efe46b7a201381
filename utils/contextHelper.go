package utils

import (
	"context"

	"github.com/inkbooks/ledger_backend/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyRequestSource = appctx.ContextKeyRequestSource
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetRequestSourceFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRequestSource)
}

func SetRequestSourceInContext(ctx context.Context, source string) context.Context {
	return appctx.Set(ctx, ContextKeyRequestSource, source)
}
