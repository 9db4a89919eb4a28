package server

import (
	"io"
	"strings"

	"blogger/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/users/me
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	profile, err := s.profileRepo.GetByUID(c.UserContext(), getUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(profile)
}

// UpdateMyProfile handles PUT /api/users/me. It accepts multipart/form-data
// with name, username, bio and an optional avatar file, or a JSON body
// without an avatar.
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	ctx := c.UserContext()

	edits, avatar, err := parseProfileEdit(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	current, err := s.profileRepo.GetByUID(ctx, getUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}

	updated, err := s.profileService.SubmitProfileEdit(ctx, *current, edits, avatar)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(updated)
}

func parseProfileEdit(c *fiber.Ctx) (models.ProfileEdits, []byte, error) {
	var edits models.ProfileEdits

	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		if err := c.BodyParser(&edits); err != nil {
			return edits, nil, models.NewValidationError("Invalid request body")
		}
		return edits, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return edits, nil, models.NewValidationError("Invalid multipart form")
	}
	edits.Name = formValue(form.Value, "name")
	edits.Username = formValue(form.Value, "username")
	edits.Bio = formValue(form.Value, "bio")

	files := form.File["avatar"]
	if len(files) == 0 {
		return edits, nil, nil
	}
	file := files[0]

	src, err := file.Open()
	if err != nil {
		return edits, nil, models.NewValidationError("Unable to read uploaded file")
	}
	defer func() { _ = src.Close() }()

	avatar, err := io.ReadAll(src)
	if err != nil {
		return edits, nil, models.NewValidationError("Unable to read uploaded file")
	}
	return edits, avatar, nil
}

// GetUserProfile handles GET /api/users/:username
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	view, err := s.postService.GetProfileView(c.UserContext(), c.Params("username"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(view)
}

// GetUserPosts handles GET /api/users/:username/posts
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	posts, err := s.postService.ListByAuthor(c.UserContext(), c.Params("username"), parseLimit(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(posts)
}

func formValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}
