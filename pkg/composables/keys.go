package composables

type contextKey string

const (
	txKey        contextKey = "tx"
	poolKey      contextKey = "pool"
	tenantKey    contextKey = "tenant"
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request-id"
)
