package scrape

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"scrapengine/internal/core/mapper"
	"scrapengine/internal/core/pool"
	"scrapengine/internal/platform/browser"
)

type Handler struct {
	service *Service
	mapper  *mapper.Service
}

func NewHandler(service *Service, mapper *mapper.Service) *Handler {
	return &Handler{service: service, mapper: mapper}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(errorResponse{Success: false, Error: msg})
}

type scrapeQuery struct {
	URL          string `query:"url"`
	Fresh        bool   `query:"fresh"`
	IncludeHTML  bool   `query:"include_html"`
	Instructions string `query:"instructions"`
	Format       string `query:"format"`
	Depth        int    `query:"depth"`
	MaxLinks     int    `query:"max_links"`
}

func (h *Handler) HandleGetScrape(c *fiber.Ctx) error {
	var q scrapeQuery
	if err := c.QueryParser(&q); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid query")
	}
	if q.URL == "" {
		return fail(c, fiber.StatusBadRequest, "url is required")
	}

	if q.Format == "links" {
		res, err := h.mapper.MapURL(mapper.Request{URL: q.URL, Depth: q.Depth, LinkLimit: q.MaxLinks})
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(Result{
			Success:    true,
			URL:        q.URL,
			Links:      res.Links,
			Discovered: len(res.Links),
			Metadata:   Metadata{SourceURL: q.URL},
		})
	}

	result, err := h.service.Scrape(c.Context(), Params{
		URL:          q.URL,
		Fresh:        q.Fresh,
		IncludeHTML:  q.IncludeHTML,
		Instructions: q.Instructions,
	})
	if err != nil {
		return fail(c, statusFor(err), err.Error())
	}
	return c.JSON(result)
}

// statusFor maps service failures to HTTP statuses using the typed errors
// the lower layers return.
func statusFor(err error) int {
	if errors.Is(err, pool.ErrAcquireTimeout) {
		return fiber.StatusServiceUnavailable
	}
	if errors.Is(err, pool.ErrClosed) {
		return fiber.StatusServiceUnavailable
	}
	if ne, ok := browser.IsNavigationError(err); ok {
		switch ne.Kind {
		case browser.NavStatus:
			if ne.StatusCode == fiber.StatusNotFound {
				return fiber.StatusNotFound
			}
			if ne.StatusCode == fiber.StatusForbidden {
				return fiber.StatusForbidden
			}
			if ne.StatusCode == fiber.StatusTooManyRequests {
				return fiber.StatusTooManyRequests
			}
			return fiber.StatusBadGateway
		case browser.NavTimeout:
			return fiber.StatusRequestTimeout
		default:
			return fiber.StatusBadGateway
		}
	}
	return fiber.StatusInternalServerError
}
