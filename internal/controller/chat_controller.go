package controller

import (
	"errors"

	"chatwave-be/internal/pkg/serverutils"
	"chatwave-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IChatController interface {
	RegisterRoutes(api fiber.Router, jwtMiddleware fiber.Handler)
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{chatService: chatService}
}

func (c *chatController) RegisterRoutes(api fiber.Router, jwtMiddleware fiber.Handler) {
	chats := api.Group("/chats", jwtMiddleware)
	chats.Get("/", c.GetChats)
	chats.Get("/:id/messages", c.GetMessages)
}

// GetChats returns every chat the authenticated user participates in.
func (c *chatController) GetChats(ctx *fiber.Ctx) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Unauthorized"))
	}

	chats, err := c.chatService.GetUserChats(ctx.Context(), userID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Chats retrieved", chats))
}

// GetMessages returns the most recent messages of one chat, newest first.
func (c *chatController) GetMessages(ctx *fiber.Ctx) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(401, "Unauthorized"))
	}

	chatID, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid chat ID"))
	}

	limit := ctx.QueryInt("limit", 50)
	messages, err := c.chatService.GetChatMessages(ctx.Context(), userID, chatID, limit)
	if err != nil {
		if errors.Is(err, service.ErrNotParticipant) {
			return ctx.Status(fiber.StatusForbidden).JSON(serverutils.ErrorResponse(403, err.Error()))
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Messages retrieved", messages))
}

func currentUserID(ctx *fiber.Ctx) (uuid.UUID, error) {
	userIDStr, ok := ctx.Locals("user_id").(string)
	if !ok {
		if uid, ok := ctx.Locals("user_id").(uuid.UUID); ok {
			return uid, nil
		}
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return uuid.Parse(userIDStr)
}
