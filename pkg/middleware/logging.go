package middleware

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/org-hierarchy/pkg/composables"
	"github.com/iota-uz/org-hierarchy/pkg/httpapi"
)

type LoggerOptions struct {
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodyLength   int

	RequestIDHeader string
	RealIPHeader    string
	// Panics under these prefixes are answered with a JSON error envelope.
	APIPrefixes []string
	Repanic     bool
}

func NewLoggerOptions(logRequestBody bool, logResponseBody bool, maxBodyLength int) LoggerOptions {
	return LoggerOptions{
		LogRequestBody:  logRequestBody,
		LogResponseBody: logResponseBody,
		MaxBodyLength:   maxBodyLength,
		RequestIDHeader: "X-Request-ID",
		RealIPHeader:    "X-Real-IP",
		APIPrefixes:     []string{"/org/api/"},
	}
}

func DefaultLoggerOptions() LoggerOptions {
	return NewLoggerOptions(true, false, 512)
}

type responseCaptureWriter struct {
	http.ResponseWriter
	statusCode    int
	statusWritten bool
	body          *bytes.Buffer
	limit         int
}

func (w *responseCaptureWriter) WriteHeader(code int) {
	if !w.statusWritten {
		w.statusCode = code
		w.statusWritten = true
		w.ResponseWriter.WriteHeader(code)
	}
}

// Status returns the HTTP status code
func (w *responseCaptureWriter) Status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *responseCaptureWriter) Write(b []byte) (int, error) {
	if !w.statusWritten {
		w.statusCode = http.StatusOK
		w.statusWritten = true
	}
	if room := w.limit - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseCaptureWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *responseCaptureWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}

func wrapResponseWriter(w http.ResponseWriter, limit int) *responseCaptureWriter {
	return &responseCaptureWriter{
		ResponseWriter: w,
		body:           &bytes.Buffer{},
		limit:          limit,
	}
}

func getRealIP(r *http.Request, header string) string {
	if v := r.Header.Get(header); header != "" && v != "" {
		return v
	}
	return r.RemoteAddr
}

func getRequestID(r *http.Request, header string) string {
	if v := r.Header.Get(header); header != "" && v != "" {
		return v
	}
	return uuid.New().String()
}

var tracer = otel.Tracer("org-hierarchy-middleware")

func TracedMiddleware(name string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			propagator := propagation.TraceContext{}
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(
				ctx,
				"middleware."+name,
				trace.WithAttributes(
					attribute.String("middleware.name", name),
					attribute.String("http.method", r.Method),
					attribute.String("http.url", r.URL.String()),
				),
			)
			defer span.End()

			propagator.Inject(ctx, propagation.HeaderCarrier(r.Header))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func formatHeaders(h http.Header) map[string]string {
	headers := make(map[string]string)
	for key, values := range h {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	return headers
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

func isAPIPath(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func truncate(b []byte, n int) string {
	if n > 0 && len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// WithLogger opens the request span, puts a request scoped logger and the
// request id into the context and turns handler panics into a 500.
func WithLogger(logger *logrus.Logger, opts LoggerOptions) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				start := time.Now()
				requestID := getRequestID(r, opts.RequestIDHeader)
				realIP := getRealIP(r, opts.RealIPHeader)

				fieldsLogger := logger.WithFields(logrus.Fields{
					"request-id": requestID,
					"path":       r.RequestURI,
					"method":     r.Method,
				})

				fieldsLogger.WithFields(logrus.Fields{
					"host":            r.Host,
					"ip":              realIP,
					"user-agent":      r.UserAgent(),
					"request-headers": formatHeaders(r.Header),
				}).Debug("request started")

				isMutatingMethod := r.Method == http.MethodPost ||
					r.Method == http.MethodPut ||
					r.Method == http.MethodPatch ||
					r.Method == http.MethodDelete
				if isMutatingMethod && opts.LogRequestBody && isJSON(r.Header.Get("Content-Type")) && r.Body != nil {
					bodyBuf := new(bytes.Buffer)
					if _, err := io.Copy(bodyBuf, r.Body); err != nil {
						fieldsLogger.WithError(err).Error("failed to read request-body")
						_ = httpapi.WriteError(w, http.StatusBadRequest, "REQUEST_BODY_UNREADABLE", "failed to read request body", map[string]string{"request_id": requestID})
						return
					}
					r.Body = io.NopCloser(bytes.NewReader(bodyBuf.Bytes()))
					fieldsLogger.WithField("request-body", truncate(bodyBuf.Bytes(), opts.MaxBodyLength)).Debug("request-body captured")
				}

				propagator := propagation.TraceContext{}
				ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

				ctx, span := tracer.Start(
					ctx,
					"http.request",
					trace.WithAttributes(
						attribute.String("http.method", r.Method),
						attribute.String("http.url", r.URL.String()),
						attribute.String("http.route", r.URL.Path),
						attribute.String("http.user_agent", r.UserAgent()),
						attribute.String("http.request_id", requestID),
						attribute.String("net.host.name", r.Host),
						attribute.String("net.peer.ip", realIP),
					),
				)
				defer span.End()

				propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

				if spanContext := span.SpanContext(); spanContext.HasTraceID() {
					traceID := spanContext.TraceID().String()
					spanID := spanContext.SpanID().String()

					w.Header().Set("X-Trace-Id", traceID)
					w.Header().Set("X-Span-Id", spanID)

					fieldsLogger = fieldsLogger.WithFields(logrus.Fields{
						"trace-id": traceID,
						"span-id":  spanID,
					})
				}
				w.Header().Set("X-Request-Id", requestID)

				ctx = composables.WithLogger(ctx, fieldsLogger)
				ctx = composables.WithRequestID(ctx, requestID)

				wrappedWriter := wrapResponseWriter(w, opts.MaxBodyLength)

				defer func() {
					recovered := recover()
					if recovered == nil {
						return
					}
					panicFields := logrus.Fields{
						"panic":       recovered,
						"stack":       string(debug.Stack()),
						"remote_addr": realIP,
						"status":      http.StatusInternalServerError,
						"duration":    time.Since(start),
					}
					if r.URL.RawQuery != "" {
						panicFields["query"] = r.URL.RawQuery
					}
					fieldsLogger.WithFields(panicFields).Error("panic recovered in request handler")
					span.SetAttributes(attribute.Int("http.status_code", http.StatusInternalServerError))

					if !wrappedWriter.statusWritten {
						if isAPIPath(r.URL.Path, opts.APIPrefixes) {
							_ = httpapi.WriteError(wrappedWriter, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error", map[string]string{
								"request_id": requestID,
								"path":       r.URL.Path,
							})
						} else {
							http.Error(wrappedWriter, "Internal Server Error", http.StatusInternalServerError)
						}
					}
					if opts.Repanic {
						panic(recovered)
					}
				}()

				next.ServeHTTP(wrappedWriter, r.WithContext(ctx))

				statusCode := wrappedWriter.Status()
				duration := time.Since(start)
				fields := logrus.Fields{
					"duration":     duration,
					"completed":    true,
					"status-code":  statusCode,
					"status-class": statusCode / 100,
				}
				if opts.LogResponseBody && isJSON(wrappedWriter.Header().Get("Content-Type")) {
					fields["response-body"] = wrappedWriter.body.String()
				}
				entry := fieldsLogger.WithFields(fields)
				if statusCode >= http.StatusInternalServerError {
					entry.Error("request completed")
				} else {
					entry.Info("request completed")
				}

				span.SetAttributes(
					attribute.Int64("http.request_duration_ms", duration.Milliseconds()),
					attribute.Int("http.status_code", statusCode),
				)
			},
		)
	}
}

// writeMiddlewareError answers with the API error envelope, carrying the
// request id when one is known.
func writeMiddlewareError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	meta := map[string]string{}
	if id, ok := composables.UseRequestID(r.Context()); ok {
		meta["request_id"] = id
	}
	if err := httpapi.WriteError(w, status, code, message, meta); err != nil {
		composables.UseLogger(r.Context()).WithError(err).Warn("failed to write error response")
	}
}
