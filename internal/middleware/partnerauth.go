package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/jointvault/jointvault/internal/membership"
)

const (
	partnerIDHeader  = "X-Partner-ID"
	partnerKeyHeader = "X-Partner-Key"
)

// PartnerAuth authenticates the two fixed vault partners. Each request
// presents its participant identity plus a secret key verified against the
// bcrypt hash configured for that participant; there are no sessions and no
// token issuance, matching the vault's immutable two-principal membership.
func PartnerAuth(gate *membership.Gate, keyHashA, keyHashB string) fiber.Handler {
	hashes := map[string]string{
		gate.ParticipantA(): keyHashA,
		gate.ParticipantB(): keyHashB,
	}

	return func(c *fiber.Ctx) error {
		participant := c.Get(partnerIDHeader)
		if participant == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing partner identity")
		}
		if !gate.IsAuthorized(participant) {
			return fiber.NewError(http.StatusForbidden, "not a vault partner")
		}

		hash := hashes[participant]
		if hash == "" {
			return fiber.NewError(http.StatusUnauthorized, "no key configured for partner")
		}

		key := c.Get(partnerKeyHeader)
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid partner key")
		}

		c.Locals("participant_id", participant)
		return c.Next()
	}
}
