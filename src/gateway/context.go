package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v3"
)

// RequestContext is handed to route handlers. It exposes the raw transport
// context plus body accessors; each accessor is independent and can be
// called repeatedly.
type RequestContext struct {
	Ctx fiber.Ctx

	responded bool
}

// Body returns the raw request body bytes.
func (rc *RequestContext) Body() []byte {
	return rc.Ctx.Body()
}

// Text returns the request body decoded as UTF-8 text.
func (rc *RequestContext) Text() string {
	return string(rc.Ctx.Body())
}

// JSON parses the request body into v.
func (rc *RequestContext) JSON(v any) error {
	if err := json.Unmarshal(rc.Ctx.Body(), v); err != nil {
		return fmt.Errorf("parse request body: %w", err)
	}
	return nil
}

// Respond writes a terminal response. A handler that calls Respond opts out
// of the gateway's default JSON encoding of its return value.
func (rc *RequestContext) Respond(status int, contentType string, body []byte) error {
	rc.responded = true
	if contentType != "" {
		rc.Ctx.Set(fiber.HeaderContentType, contentType)
	}
	return rc.Ctx.Status(status).Send(body)
}

// Responded reports whether the handler wrote its own terminal response.
func (rc *RequestContext) Responded() bool {
	return rc.responded
}
