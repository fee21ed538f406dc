package tips

// CreateCheckoutRequest is the body of POST /api/create-checkout-session
type CreateCheckoutRequest struct {
	Amount   int64  `json:"amount" binding:"required"`
	RoomID   string `json:"roomId"`
	SocketID string `json:"socketId"`
}

// CreateCheckoutResponse carries the Stripe-hosted payment page URL
type CreateCheckoutResponse struct {
	URL string `json:"url"`
}
