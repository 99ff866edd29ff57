package routes

import (
	"net/http"

	"github.com/Lay199xxx/BangerBaby.com/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, bc *controllers.BeatController, pc *controllers.PaymentController) {
	// Stripe webhook (no auth; the signature header is the authentication)
	r.POST("/stripe-webhook", pc.StripeWebhook)

	r.POST("/create-payment-intent", pc.CreatePaymentIntent)
	r.POST("/fulfill-free-order", pc.FulfillFreeOrder)

	api := r.Group("/api")
	api.GET("/beats", bc.GetBeats)
	api.GET("/beat/:id", bc.GetBeat)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
