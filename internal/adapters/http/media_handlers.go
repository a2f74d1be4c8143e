package http

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// readUpload reads the multipart "file" field, refusing payloads over max
// before they are fully buffered.
func readUpload(c *fiber.Ctx, max int64) (string, []byte, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, domain.ErrInvalidInput
	}
	if fh.Size > max {
		return "", nil, domain.ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return "", nil, err
	}
	return fh.Filename, data, nil
}

// UploadMediaHandler attaches an image to a record. Payloads that are not a
// decodable JPEG, PNG or WebP are rejected with 415 before anything is stored.
func UploadMediaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name, data, err := readUpload(c, deps.Media.Limits().MaxBytes)
		if err != nil {
			return errFromDomain(c, err)
		}
		m, err := deps.Media.Upload(c.UserContext(), sessionFrom(c).Scope(), c.Params("id"), name, data)
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Location("/v1/media/" + m.ID)
		return c.Status(fiber.StatusCreated).JSON(m)
	}
}

// ListMediaHandler lists a record's images.
func ListMediaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := deps.Media.List(c.UserContext(), sessionFrom(c).Scope(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"data": items})
	}
}

// GetMediaHandler returns media metadata.
func GetMediaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, err := deps.Media.Get(c.UserContext(), sessionFrom(c).Scope(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(m)
	}
}

// MediaContentHandler streams the original or a derivative (?variant=thumb).
func MediaContentHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc, contentType, err := deps.Media.Open(c.UserContext(), sessionFrom(c).Scope(), c.Params("id"), c.Query("variant"))
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Set(fiber.HeaderContentType, contentType)
		c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
		// fasthttp closes rc once the body has been written.
		return c.SendStream(rc)
	}
}

// DeleteMediaHandler removes an image and its stored objects.
func DeleteMediaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Media.Delete(c.UserContext(), sessionFrom(c).Scope(), c.Params("id")); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
