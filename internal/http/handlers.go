package http

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v4"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/relay"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/repository"
)

func relayMetricsHandler(rel *relay.Relay) echo.HandlerFunc {
	return func(c echo.Context) error {
		m, err := rel.Metrics(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("relay metrics failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, m)
	}
}

func listDLQHandler(dlqRepo repository.DLQRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		msgs, err := dlqRepo.ListRecent(c.Request().Context(), limit)
		if err != nil {
			c.Logger().Errorf("dlq list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"count":   len(msgs),
			"results": msgs,
		})
	}
}
