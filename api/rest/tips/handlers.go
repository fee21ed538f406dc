package tips

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Miyuslav/Snack-no-trace/internal/errors"
	"github.com/Miyuslav/Snack-no-trace/internal/logger"
	"github.com/Miyuslav/Snack-no-trace/internal/lounge"
	"github.com/Miyuslav/Snack-no-trace/internal/payments"
)

// limits the webhook body size; Stripe deliveries are small
const maxWebhookBody = 64 * 1024

// creates a Stripe checkout session for a tip and returns its payment URL
func CreateCheckoutSessionHandler(stripeClient *payments.Client, frontendOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !stripeClient.Enabled() {
			errors.BadRequest(c, "tipping is not configured", nil)
			return
		}

		var req CreateCheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.BadRequest(c, "invalid request body", err)
			return
		}

		if req.Amount <= 0 {
			errors.BadRequest(c, "invalid amount", nil)
			return
		}

		// prefer the caller's origin so the return URL lands on the page
		// the guest is actually using
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = frontendOrigin
		}

		link, err := stripeClient.CreateCheckoutSession(c.Request.Context(), req.Amount, req.RoomID, req.SocketID, origin)
		if err != nil {
			errors.InternalError(c, "failed to create checkout session", err)
			return
		}

		logger.Info("checkout session created",
			"amount", req.Amount,
			"room_tag", req.RoomID,
			"checkout_id", link.SessionID,
		)

		c.JSON(http.StatusOK, CreateCheckoutResponse{URL: link.URL})
	}
}

// verifies and applies Stripe webhook deliveries. Only completed checkouts
// are acted on, everything else is acknowledged and dropped.
func StripeWebhookHandler(stripeClient *payments.Client, orch *lounge.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !stripeClient.Enabled() {
			errors.BadRequest(c, "tipping is not configured", nil)
			return
		}

		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			errors.BadRequest(c, "failed to read webhook body", err)
			return
		}

		event, err := stripeClient.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			logger.Warn("webhook signature verification failed", "error", err)
			errors.BadRequest(c, "webhook signature verification failed", err)
			return
		}

		if event.Type == payments.EventCheckoutCompleted {
			session := event.Data.Object

			orch.ConfirmTip(
				session.Metadata["roomId"],
				session.Metadata["socketId"],
				session.ID,
				session.AmountTotal,
			)
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
