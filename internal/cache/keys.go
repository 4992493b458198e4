package cache

import "strings"

// KeyCart is the shopping cart document of a session.
func KeyCart(sessionID string) string {
	return "cart:" + strings.TrimSpace(sessionID)
}

// KeyRewardsCart is the rewards cart document of a session.
func KeyRewardsCart(sessionID string) string {
	return "rewards-cart:" + strings.TrimSpace(sessionID)
}

// KeyBalance is the cached points balance snapshot of a user.
func KeyBalance(userID string) string {
	return "balance:" + strings.TrimSpace(userID)
}

// KeySubmitLatch guards in-flight submissions of one kind for a session.
func KeySubmitLatch(kind, sessionID string) string {
	return "latch:" + kind + ":" + strings.TrimSpace(sessionID)
}
