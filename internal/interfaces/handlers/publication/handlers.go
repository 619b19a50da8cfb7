package publication

import (
	"encoding/json"
	"fmt"

	"certverify-backend/internal/application/publication"
	"certverify-backend/internal/domain"
	"certverify-backend/internal/middleware"
	"certverify-backend/internal/pkg/response"
	"certverify-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers expose the publication coordinator to the external relay. Relay is nil when no
// ledger publisher is configured.
type Handlers struct {
	Coordinator *publication.Coordinator
	Relay       *publication.Relay
}

func issuerID(c *fiber.Ctx) (uuid.UUID, error) {
	p := middleware.GetPrincipal(c)
	if p == nil || p.Issuer == nil {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
	}
	return p.Issuer.ID, nil
}

func badConfirmation(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrInvalidConfirmation, err)
}

// Prepare GET /api/v1/publication/prepare
func (h *Handlers) Prepare(c *fiber.Ctx) error {
	id, err := issuerID(c)
	if err != nil {
		return err
	}
	batch, err := h.Coordinator.PrepareBatch(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Batch prepared", batch, fiber.Map{"count": len(batch.Items)})
}

// Pending GET /api/v1/publication/pending
func (h *Handlers) Pending(c *fiber.Ctx) error {
	id, err := issuerID(c)
	if err != nil {
		return err
	}
	n, err := h.Coordinator.PendingCount(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Pending certificates", fiber.Map{"pending": n}, nil)
}

type itemsBody struct {
	Items []publication.Item `json:"items"`
}

// Stage POST /api/v1/publication/stage
func (h *Handlers) Stage(c *fiber.Ctx) error {
	id, err := issuerID(c)
	if err != nil {
		return err
	}
	var body itemsBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return badConfirmation(err)
	}
	n, err := h.Coordinator.StageBatch(c.UserContext(), id, body.Items)
	if err != nil {
		return err
	}
	return response.Success(c, "Batch staged", fiber.Map{"staged": n}, nil)
}

type confirmBody struct {
	BatchID     *uuid.UUID         `json:"batch_id"`
	TxRef       string             `json:"tx_ref"`
	BlockNumber *uint64            `json:"block_number"`
	Items       []publication.Item `json:"items"`
}

// Confirm POST /api/v1/publication/confirm. Either batch_id (a prepared batch) or items.
func (h *Handlers) Confirm(c *fiber.Ctx) error {
	id, err := issuerID(c)
	if err != nil {
		return err
	}
	var body confirmBody
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return badConfirmation(err)
	}
	var res *publication.ConfirmResult
	switch {
	case body.BatchID != nil:
		res, err = h.Coordinator.ConfirmPrepared(c.UserContext(), id, *body.BatchID, body.TxRef, body.BlockNumber)
	case len(body.Items) > 0:
		res, err = h.Coordinator.ConfirmBatch(c.UserContext(), id, body.TxRef, body.BlockNumber, body.Items)
	default:
		err = badConfirmation(fmt.Errorf("batch_id or items is required"))
	}
	if err != nil {
		return err
	}
	return response.Success(c, "Batch confirmed", res, nil)
}

// Abandon DELETE /api/v1/publication/batches/:id
func (h *Handlers) Abandon(c *fiber.Ctx) error {
	id, err := issuerID(c)
	if err != nil {
		return err
	}
	batchID, err := validation.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.Coordinator.AbandonBatch(c.UserContext(), id, batchID); err != nil {
		return err
	}
	return response.Success(c, "Batch abandoned", fiber.Map{"batch_id": batchID}, nil)
}

// Publish POST /api/v1/publication/publish runs the in-process relay against the ledger.
func (h *Handlers) Publish(c *fiber.Ctx) error {
	id, err := issuerID(c)
	if err != nil {
		return err
	}
	if h.Relay == nil {
		return domain.ErrLedgerUnavailable
	}
	out, err := h.Relay.Publish(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Batch published", out, nil)
}
