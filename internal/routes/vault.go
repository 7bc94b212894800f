package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jointvault/jointvault/internal/vault"
)

// RegisterVaultRoutes wires vault endpoints under the authenticated group.
func RegisterVaultRoutes(router fiber.Router, h *vault.Handler, rateLimiter fiber.Handler) {
	router.Get("/vault", h.Overview)
	router.Get("/vault/partners/:participantId", h.Partner)
	router.Get("/vault/journal", h.Journal)

	router.Post("/vault/deposits", rateLimiter, h.Deposit)
	router.Post("/vault/withdrawals", rateLimiter, h.Withdraw)
	router.Post("/vault/payments", rateLimiter, h.PayShared)
	router.Post("/vault/separation", rateLimiter, h.Separation)
}
