package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/bravo68web/tableidentity/pkg/logger"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"

	requestIDKey = "request_id"
	tracerName   = "github.com/bravo68web/tableidentity/internal/transport/http"
)

// RequestLogOptions configures RequestLogger
type RequestLogOptions struct {
	Logger *logger.Logger
	// TracerProvider starts one server span per request; nil disables tracing
	TracerProvider trace.TracerProvider
	// SkipPaths are served without a log line or span, e.g. probes
	SkipPaths []string
}

// RequestLogger assigns every request an ID, wraps it in a server span named
// after its route that continues any incoming traceparent and writes one log line when it completes. 5xx responses
// log at error, 4xx at warn.
func RequestLogger(opts RequestLogOptions) gin.HandlerFunc {
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	tracer := tp.Tracer(tracerName)
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

	skip := make(map[string]bool, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(HeaderRequestID, requestID)

		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(c.Request.Method),
				semconv.URLPath(path),
				semconv.ClientAddress(c.ClientIP()),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		if sc := span.SpanContext(); sc.IsValid() {
			c.Header(HeaderTraceID, sc.TraceID().String())
		}

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route != "" {
			span.SetName(c.Request.Method + " " + route)
			span.SetAttributes(semconv.HTTPRoute(route))
		}
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if status >= 500 {
			span.SetStatus(codes.Error, "")
		}

		fields := []logger.Field{
			logger.RequestID(requestID),
			logger.Method(c.Request.Method),
			logger.Path(path),
			logger.Route(route),
			logger.StatusCode(status),
			logger.Latency(time.Since(start)),
			logger.ClientIP(c.ClientIP()),
			logger.UserAgent(c.Request.UserAgent()),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, logger.Query(q))
		}
		if user := GetUserFromContext(c); user != nil {
			fields = append(fields, logger.UserID(user.ID))
		}
		if last := c.Errors.Last(); last != nil {
			fields = append(fields, logger.Error(last.Err))
		}

		reqLog := log.WithContext(ctx)
		switch {
		case status >= 500:
			reqLog.Error("HTTP request", fields...)
		case status >= 400:
			reqLog.Warn("HTTP request", fields...)
		default:
			reqLog.Info("HTTP request", fields...)
		}
	}
}

// GetRequestID retrieves the request ID from the gin context
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
