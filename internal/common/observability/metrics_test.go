package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoop_RecordsWithoutPanicking(t *testing.T) {
	o := NewNoop()

	ctx, span := o.StartSpan(context.Background(), "recommend-winkers", attribute.Int64("requesterId", 7))
	assert.NotNil(t, ctx)
	span.End()

	o.RecordJobProcessed(ctx, "recommend-winkers", "success")
	o.RecordJobDuration(ctx, "recommend-winkers", 12*time.Millisecond, "success")
	o.Shutdown()
}

func TestStartSpan_ZeroValueFallsBackToGlobalTracer(t *testing.T) {
	var o Observability
	_, span := o.StartSpan(context.Background(), "search-events")
	assert.NotNil(t, span)
	span.End()
}
