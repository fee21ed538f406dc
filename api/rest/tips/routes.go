package tips

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/Miyuslav/Snack-no-trace/internal/lounge"
	"github.com/Miyuslav/Snack-no-trace/internal/payments"
)

// checkout creation is limited per IP; webhook deliveries come from Stripe
// and are not rate limited
var checkoutRate = limiter.Rate{
	Period: time.Minute,
	Limit:  10,
}

func RegisterRoutes(router *gin.RouterGroup, stripeClient *payments.Client, orch *lounge.Orchestrator, frontendOrigin string) {
	checkoutLimiter := mgin.NewMiddleware(limiter.New(memory.NewStore(), checkoutRate))

	router.POST("/create-checkout-session", checkoutLimiter, CreateCheckoutSessionHandler(stripeClient, frontendOrigin))
	router.POST("/stripe-webhook", StripeWebhookHandler(stripeClient, orch))
}
