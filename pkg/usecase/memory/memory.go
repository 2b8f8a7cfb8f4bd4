package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/interfaces"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/policy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/m-mizutani/kioku/pkg/usecase/memory"

var (
	ErrValidation = goerr.New("validation error")
)

// UseCase provides memory operations scoped to one user's partition
type UseCase struct {
	client    interfaces.MemoryClient
	admission *policy.Admission
	tracer    trace.Tracer
	limit     int
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithTracerProvider sets the tracer provider used for spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(uc *UseCase) {
		uc.tracer = tp.Tracer(tracerName)
	}
}

// WithLimit overrides the partition ceiling and list page size
func WithLimit(limit int) Option {
	return func(uc *UseCase) {
		uc.limit = limit
	}
}

// New creates a new memory UseCase instance
func New(
	client interfaces.MemoryClient,
	admission *policy.Admission,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		client:    client,
		admission: admission,
		tracer:    otel.GetTracerProvider().Tracer(tracerName),
		limit:     model.MemoryLimit,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// Limit returns the partition ceiling
func (u *UseCase) Limit() int {
	return u.limit
}

func (u *UseCase) start(ctx context.Context, name string, user model.UserID, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("kioku.user_id", user.String()))
	return u.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish ends span, recording err when set
func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func requireUser(user model.UserID) error {
	if user == "" {
		return goerr.Wrap(ErrValidation, "User ID is required")
	}
	return nil
}
