package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"carscout/app/service/turn"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const defaultPageSize = 50

type sendMessageRequest struct {
	Text string `json:"text"`
}

// handleSendMessage runs one turn and streams its events back as SSE. The
// stream ends after exactly one done or error event.
func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat id")
	}

	var req sendMessageRequest
	if err = c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return fiber.NewError(fiber.StatusBadRequest, "text is required")
	}

	// the session must outlive this handler, it is bound to the app context
	sess, err := s.turnSvc.ProcessMessage(s.appCtx, chatID, req.Text)
	if err != nil {
		if turn.ErrorCode(err) == turn.CodeSessionActive {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error_kind": turn.CodeSessionActive,
			})
		}

		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		for ev := range sess.Events() {
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)

			if err = w.Flush(); err != nil {
				// client went away, the orchestrator keeps the partial reply
				sess.Cancel(err)
				return
			}
		}
	}))

	return nil
}

func (s *Server) handleListMessages(c *fiber.Ctx) error {
	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat id")
	}

	limit := c.QueryInt("limit", defaultPageSize)
	offset := c.QueryInt("offset", 0)

	messages, err := s.storeSvc.ListMessages(c.Context(), chatID, limit, offset)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(messages)
}

func (s *Server) handleGetIntent(c *fiber.Ctx) error {
	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat id")
	}

	intent, err := s.storeSvc.LoadIntent(c.Context(), chatID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(intent)
}
