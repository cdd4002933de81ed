package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError reports an infrastructure failure and logs it. fields may be nil.
func CaptureError(logger *Logger, message string, err error, fields map[string]any) {
	payload := map[string]any{"error": err.Error()}
	for k, v := range fields {
		payload[k] = v
	}
	logger.Error(message, payload)
	sentry.CaptureException(err)
}
