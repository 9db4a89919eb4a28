package server

import (
	"blogger/internal/auth"
	"blogger/internal/models"

	"github.com/gofiber/fiber/v2"
)

// LoginRequest represents the request body for user login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup handles POST /api/auth/signup
func (s *Server) Signup(c *fiber.Ctx) error {
	var req auth.SignUpInput
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	session, err := s.auth.SignUp(c.UserContext(), req)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	session, err := s.auth.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(session)
}

// Logout handles POST /api/auth/logout by revoking the presented token.
func (s *Server) Logout(c *fiber.Ctx) error {
	token, _ := c.Locals("token").(string)
	if err := s.auth.SignOut(c.UserContext(), token); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}
