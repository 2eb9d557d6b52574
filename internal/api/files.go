package api

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/boubkhaled/streampump/internal/pump"
	"github.com/boubkhaled/streampump/internal/pump/sinks"
	"github.com/boubkhaled/streampump/internal/pump/sources"
	"github.com/boubkhaled/streampump/internal/services/transfer"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/singleflight"
)

// FileHandler streams spool files to clients and computes their digests.
type FileHandler struct {
	spoolDir  string
	chunkSize int
	checksums singleflight.Group
}

func NewFileHandler(spoolDir string, chunkSize int) *FileHandler {
	if chunkSize <= 0 {
		chunkSize = pump.DefaultChunkSize
	}
	return &FileHandler{
		spoolDir:  spoolDir,
		chunkSize: chunkSize,
	}
}

// ServeFile streams a spool file chunk by chunk, flushing on the client's
// backpressure instead of buffering the whole file.
func (h *FileHandler) ServeFile(c *fiber.Ctx) error {
	rel, err := url.PathUnescape(c.Params("+"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid file path",
		})
	}

	path, err := transfer.SpoolPath(h.spoolDir, rel)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	src, err := sources.OpenFile(path)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "File not found",
		})
	}

	if mime := utils.GetMIME(filepath.Ext(path)); mime != "" {
		c.Set(fiber.HeaderContentType, mime)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	if size := src.Size(); size >= 0 {
		c.Set(fiber.HeaderContentLength, strconv.FormatInt(size, 10))
	}

	chunkSize := h.chunkSize
	fasthttpCtx := c.Context()
	fasthttpCtx.SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		connState := sinks.NewFastHTTPConnectionState(fasthttpCtx)
		snk := sinks.NewHTTP(w, connState, 0)

		p, err := pump.New(src, snk, pump.WithChunkSize(chunkSize))
		if err != nil {
			fiberlog.Errorf("failed to start file stream for %s: %v", path, err)
			_ = src.Close()
			return
		}

		res := p.Run(fasthttpCtx)
		if res.Err != nil {
			fiberlog.Warnf("file stream for %s ended early after %d bytes: %v", path, res.BytesMoved, res.Err)
		}
	}))

	return nil
}

// Checksum computes the SHA-256 of a spool file by pumping it through a hash
// sink. Concurrent requests for the same file share one computation.
func (h *FileHandler) Checksum(c *fiber.Ctx) error {
	rel, err := url.PathUnescape(c.Params("+"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid file path",
		})
	}

	path, err := transfer.SpoolPath(h.spoolDir, rel)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	result, err, _ := h.checksums.Do(path, func() (any, error) {
		src, err := sources.OpenFile(path)
		if err != nil {
			return nil, err
		}

		snk := sinks.NewHash()
		p, err := pump.New(src, snk, pump.WithChunkSize(h.chunkSize))
		if err != nil {
			_ = src.Close()
			return nil, err
		}

		res := p.Run(c.Context())
		if res.Err != nil {
			return nil, fmt.Errorf("checksum failed after %d bytes: %w", res.BytesMoved, res.Err)
		}

		return fiber.Map{
			"path":   rel,
			"sha256": snk.Sum(),
			"bytes":  res.BytesMoved,
			"chunks": res.Chunks,
		}, nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "file not found",
			})
		}
		return errorResponse(c, err)
	}

	return c.JSON(result)
}
