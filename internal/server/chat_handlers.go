package server

import (
	"rentonmap/internal/models"
	"rentonmap/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetConversations handles GET /api/chat/conversations
// @Summary The caller's conversations, most recent first
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{conversations=[]models.Conversation}
// @Router /chat/conversations [get]
func (s *Server) GetConversations(c *fiber.Ctx) error {
	convs, err := s.chatService.ListConversations(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

// StartConversation handles POST /api/chat/conversations
// @Summary Start or reopen the conversation with a listing's owner
// @Tags chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body StartConversationRequest true "Listing and owner"
// @Success 200 {object} object{conversationId=int}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /chat/conversations [post]
func (s *Server) StartConversation(c *fiber.Ctx) error {
	var req StartConversationRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	conv, err := s.chatService.StartConversation(c.UserContext(), service.StartConversationInput{
		UserID:    currentUserID(c),
		ListingID: req.PropertyID,
		OwnerID:   req.OwnerID,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"conversationId": conv.ID})
}

// MarkConversationRead handles POST /api/chat/conversations/:id/read
// @Summary Reset the caller's unread counter
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Param id path int true "Conversation ID"
// @Success 200 {object} object{success=bool}
// @Failure 403 {object} models.ErrorResponse
// @Router /chat/conversations/{id}/read [post]
func (s *Server) MarkConversationRead(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.chatService.MarkRead(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// GetMessages handles GET /api/chat/messages?conversationId=
// @Summary Full message history, oldest first
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Param conversationId query int true "Conversation ID"
// @Success 200 {object} object{messages=[]models.Message}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /chat/messages [get]
func (s *Server) GetMessages(c *fiber.Ctx) error {
	conversationID := c.QueryInt("conversationId", 0)
	if conversationID <= 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Missing conversationId", "conversationId"))
	}

	msgs, err := s.chatService.ListMessages(c.UserContext(), uint(conversationID), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// SendMessage handles POST /api/chat/messages
// @Summary Send a message
// @Tags chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SendMessageRequest true "Message"
// @Success 201 {object} object{message=models.Message}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /chat/messages [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	msg, err := s.chatService.SendMessage(c.UserContext(), service.SendMessageInput{
		UserID:         currentUserID(c),
		ConversationID: req.ConversationID,
		Content:        req.Content,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": msg})
}
