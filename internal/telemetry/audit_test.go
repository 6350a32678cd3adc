package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bridge-service/internal/mocks"
	"bridge-service/internal/telemetry"
)

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.bridge", "bridge-service", "test")

	publisher.On("Publish", mock.Anything, "audit.bridge", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(telemetry.AuditEnvelope)
		return ok &&
			envelope.EventType == "audit_log" &&
			envelope.Service == "bridge-service" &&
			envelope.RequestID == "req-1" &&
			envelope.Actor == "alice" &&
			envelope.Payload.Level == "INFO" &&
			envelope.Payload.Text == "Channel created"
	})).Return(nil).Once()

	emitter.Emit(context.Background(), "INFO", "Channel created", "req-1", "alice")
	publisher.AssertExpectations(t)
}

func TestAuditEmitterNilSafe(t *testing.T) {
	var emitter *telemetry.AuditEmitter
	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "x", "req-1", "")
	})
}
