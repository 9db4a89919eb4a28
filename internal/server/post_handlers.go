package server

import (
	"blogger/internal/models"
	"blogger/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// CreatePostRequest is the body of POST /api/posts.
type CreatePostRequest struct {
	Text string `json:"text"`
}

// GetFeed handles GET /api/posts?author=&limit=
func (s *Server) GetFeed(c *fiber.Ctx) error {
	posts, err := s.postService.ListPosts(c.UserContext(), repository.PostQuery{
		AuthorUsername: c.Query("author"),
		Limit:          parseLimit(c),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(posts)
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req CreatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postService.CreatePost(c.UserContext(), req.Text)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}
