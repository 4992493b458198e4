package rewards

// RedemptionLine is one reward line of a redemption submission.
type RedemptionLine struct {
	RewardID   string `json:"reward_id"`
	Quantity   int    `json:"quantity"`
	PointsCost int64  `json:"points_cost"`
}

// RedemptionRequest is the body posted to the upstream redemption endpoint.
type RedemptionRequest struct {
	Rewards     []RedemptionLine `json:"rewards"`
	TotalPoints int64            `json:"total_points"`
}

// BuildRedemptionRequest maps the cart into a redemption payload in cart order.
func BuildRedemptionRequest(c *Cart) RedemptionRequest {
	req := RedemptionRequest{Rewards: make([]RedemptionLine, 0, len(c.Items))}
	for _, it := range c.Items {
		if it.Quantity <= 0 {
			continue
		}
		req.Rewards = append(req.Rewards, RedemptionLine{
			RewardID:   it.ID,
			Quantity:   it.Quantity,
			PointsCost: it.PointsCost,
		})
	}
	req.TotalPoints = c.TotalPointsCost()
	return req
}
