package middleware

import (
	"context"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/flowmatic/conductor/common/models"
	"github.com/flowmatic/conductor/common/ratelimit"
)

// DefinitionLookup resolves the current definition of a workflow so the
// middleware can tier it by dispatch cost.
type DefinitionLookup func(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error)

// isInternalRequest checks if the request is from an internal service.
// Internal services set X-Internal-Service header to bypass rate limits.
func isInternalRequest(c echo.Context) bool {
	internalHeader := c.Request().Header.Get("X-Internal-Service")
	if internalHeader == "" {
		return false
	}

	// Verify against shared secret (prevents spoofing)
	expectedSecret := os.Getenv("INTERNAL_SERVICE_SECRET")
	if expectedSecret == "" {
		expectedSecret = "default-internal-secret-change-in-prod" // Fallback for dev
	}

	return internalHeader == expectedSecret
}

// SubmitRateLimit guards the execution submit route. It enforces the
// service-wide limit first, then a per-workflow limit tiered by how many
// remote actions the definition dispatches. Limiter errors fail open so
// a Redis outage never blocks submissions.
func SubmitRateLimit(rateLimiter *ratelimit.RateLimiter, lookup DefinitionLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			ctx := c.Request().Context()

			global, err := rateLimiter.CheckGlobalLimit(ctx)
			if err == nil && !global.Allowed {
				return tooManyRequests(c, "global_rate_limit_exceeded",
					"Service is experiencing high load. Please try again later.", global)
			}

			workflowID := c.Param("id")
			if workflowID == "" {
				return next(c)
			}

			// Unknown workflows get the most restrictive tier; the handler
			// will return the real 404 after the limit check.
			tier := ratelimit.TierHeavy
			if def, err := lookup(ctx, workflowID); err == nil {
				tier = ratelimit.InspectDefinition(def).Tier
			}

			result, err := rateLimiter.CheckTieredLimit(ctx, workflowID, tier)
			if err != nil {
				// On error, allow request (fail open for availability)
				return next(c)
			}

			if !result.Allowed {
				return tooManyRequests(c, "workflow_rate_limit_exceeded",
					"This workflow has exceeded its submission quota. Please wait before trying again.", result)
			}

			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, code, message string, result *ratelimit.RateLimitResult) error {
	return c.JSON(http.StatusTooManyRequests, map[string]any{
		"error":   code,
		"message": message,
		"details": map[string]any{
			"limit":               result.Limit,
			"current_count":       result.CurrentCount,
			"retry_after_seconds": result.RetryAfterSeconds,
		},
	})
}
