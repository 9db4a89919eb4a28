package server

import (
	"errors"
	"mime"
	"path"

	"blogger/internal/blob"
	"blogger/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ServeMedia handles GET <media prefix>/* by streaming the stored object.
// The ?v= query is a cache key only and is ignored here.
func (s *Server) ServeMedia(c *fiber.Ctx) error {
	objectPath := c.Params("*")

	rc, info, err := s.blobs.Open(c.UserContext(), objectPath)
	switch {
	case errors.Is(err, blob.ErrInvalidPath):
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid media path"))
	case errors.Is(err, blob.ErrNotFound):
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Media", objectPath))
	case err != nil:
		return respondServiceError(c, err)
	}

	contentType := mime.TypeByExtension(path.Ext(objectPath))
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	if c.Query("v") != "" {
		c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	} else {
		c.Set(fiber.HeaderCacheControl, "no-cache")
	}

	// fasthttp closes rc once the body is written.
	return c.SendStream(rc, int(info.Size()))
}
