package instrument

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const TraceHeader = "X-Trace-ID"

// Middleware assigns every request a trace id, echoes it in the response
// header and records the request as the root span. The matched route pattern
// is kept in the span metadata.
func Middleware(b *BufferedInstrumenter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get(TraceHeader)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.NewString()
		}
		c.Set(TraceHeader, traceID)

		inst := b.ForRequest()
		ctx := WithInstrumenter(withTrace(c.UserContext(), traceID), inst)
		ctx, span := inst.StartSpan(ctx, "http", "handler", fmt.Sprintf("%s %s", c.Method(), c.Path()))
		c.SetUserContext(ctx)

		err := c.Next()
		status := c.Response().StatusCode()
		span.SetMetadata("route", c.Route().Path)
		span.SetMetadata("status_code", status)
		if err != nil || status >= 500 {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()
		return err
	}
}
