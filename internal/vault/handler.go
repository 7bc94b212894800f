package vault

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jointvault/jointvault/internal/shares"
)

// Handler exposes vault HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a vault HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type paymentRequest struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// Deposit pulls funds from the authenticated partner into the vault.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	participant, _ := c.Locals("participant_id").(string)

	res, err := h.service.Deposit(c.UserContext(), participant, req.Amount)
	if err != nil {
		return fiber.NewError(statusForError(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"participant":   res.Participant,
		"amount":        res.Amount,
		"minted_shares": res.MintedShares,
		"completed_at":  res.CompletedAt,
	})
}

// Withdraw transfers part of the partner's proportional claim out.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	participant, _ := c.Locals("participant_id").(string)

	res, err := h.service.Withdraw(c.UserContext(), participant, req.Amount)
	if err != nil {
		return fiber.NewError(statusForError(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"participant":   res.Participant,
		"amount":        res.Amount,
		"burned_shares": res.BurnedShares,
		"completed_at":  res.CompletedAt,
	})
}

// PayShared splits a common expense 50/50 between both partners.
func (h *Handler) PayShared(c *fiber.Ctx) error {
	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	caller, _ := c.Locals("participant_id").(string)

	res, err := h.service.PayShared(c.UserContext(), caller, req.Recipient, req.Amount)
	if err != nil {
		return fiber.NewError(statusForError(err), err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"recipient":       res.Recipient,
		"amount":          res.Amount,
		"paid_by_a":       res.PaidByA,
		"paid_by_b":       res.PaidByB,
		"burned_shares_a": res.BurnedSharesA,
		"burned_shares_b": res.BurnedSharesB,
		"completed_at":    res.CompletedAt,
	})
}

// Separation triggers the one-way relationship transition.
func (h *Handler) Separation(c *fiber.Ctx) error {
	caller, _ := c.Locals("participant_id").(string)

	if err := h.service.TriggerSeparation(c.UserContext(), caller); err != nil {
		return fiber.NewError(statusForError(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"state":     StateSeparated,
		"timestamp": time.Now().UTC(),
	})
}

// Overview reports vault-wide state and valuation.
func (h *Handler) Overview(c *fiber.Ctx) error {
	ctx := c.UserContext()

	state, err := h.service.State(ctx)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	assets, err := h.service.TotalAssets(ctx)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	supply, err := h.service.TotalShares(ctx)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"state":        state,
		"total_assets": assets,
		"total_shares": supply,
		"timestamp":    time.Now().UTC(),
	})
}

// Partner reports one partner's shares and estimated balance.
func (h *Handler) Partner(c *fiber.Ctx) error {
	participant := c.Params("participantId")

	valuation, err := h.service.EstimatedBalance(c.UserContext(), participant)
	if err != nil {
		return fiber.NewError(statusForError(err), err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"participant":       valuation.Participant,
		"shares":            valuation.Shares,
		"estimated_balance": valuation.EstimatedBalance,
		"as_of":             valuation.AsOf,
	})
}

// Journal returns the append-only audit trail.
func (h *Handler) Journal(c *fiber.Ctx) error {
	entries, err := h.service.Journal(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		out = append(out, fiber.Map{
			"id":            e.ID,
			"kind":          e.Kind,
			"actor":         e.Actor,
			"recipient":     e.Recipient,
			"amount":        e.Amount,
			"share_delta_a": e.ShareDeltaA,
			"share_delta_b": e.ShareDeltaB,
			"recorded_at":   e.RecordedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entries": out})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrNilRecipient):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrSeparated), errors.Is(err, ErrOperationInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrEmptyVault), errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, shares.ErrInsufficientShares):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrOverflow), errors.Is(err, shares.ErrOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
