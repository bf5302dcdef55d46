package public

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/viberank/internal/app"
	"github.com/ncecere/viberank/internal/cache"
	"github.com/ncecere/viberank/internal/httpserver/httputil"
	"github.com/ncecere/viberank/internal/leaderboard"
	"github.com/ncecere/viberank/internal/models"
	"github.com/ncecere/viberank/internal/store"
	"github.com/ncecere/viberank/internal/timeutil"
)

type readHandler struct {
	container *app.Container
	now       func() time.Time
}

type leaderboardResponse struct {
	Submissions []models.Submission `json:"submissions"`
	SortBy      string              `json:"sortBy"`
	Limit       int                 `json:"limit"`
	DateFrom    string              `json:"dateFrom,omitempty"`
	DateTo      string              `json:"dateTo,omitempty"`
}

func (h *readHandler) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

func (h *readHandler) leaderboard(c *fiber.Ctx) error {
	ctx := httputil.UserContext(c)

	sortBy := strings.ToLower(strings.TrimSpace(c.Query("sortBy", string(store.SortByCost))))
	field, ok := store.ParseSortField(sortBy)
	if !ok {
		return httputil.WriteError(c, fiber.StatusBadRequest, leaderboard.ErrInvalidSort.Error())
	}

	dates, err := h.dateFilter(c)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
	}
	includeFlagged, _ := strconv.ParseBool(c.Query("includeFlagged", "false"))
	limit := httputil.QueryInt(c, "limit", 0)

	cacheKey := fmt.Sprintf("leaderboard:%s:%d:%s:%s:%t", field, limit, dates.From, dates.To, includeFlagged)
	entry, hit := h.serveCached(c, cacheKey)
	if hit {
		return nil
	}

	subs, err := h.container.Leaderboard.List(ctx, leaderboard.Query{
		SortBy:         field,
		Limit:          limit,
		Dates:          dates,
		IncludeFlagged: includeFlagged,
	})
	if err != nil {
		if errors.Is(err, leaderboard.ErrInvalidSort) {
			return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
		}
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, "failed to load leaderboard, please try again")
	}

	effective := limit
	if effective <= 0 {
		effective = h.container.Leaderboard.Config().DefaultLimit
	}
	if maxLimit := h.container.Leaderboard.Config().MaxLimit; effective > maxLimit {
		effective = maxLimit
	}
	return h.writeCached(c, entry, leaderboardResponse{
		Submissions: subs,
		SortBy:      string(field),
		Limit:       effective,
		DateFrom:    dates.From,
		DateTo:      dates.To,
	})
}

// dateFilter reads dateFrom/dateTo, or a rolling period such as "7d" when
// neither bound is given.
func (h *readHandler) dateFilter(c *fiber.Ctx) (timeutil.DateFilter, error) {
	from, to := c.Query("dateFrom"), c.Query("dateTo")
	period := strings.TrimSpace(c.Query("period"))
	if from == "" && to == "" && period != "" && period != "all" {
		window, err := timeutil.NewWindow(period, h.clock(), h.container.ReportingLocation)
		if err != nil {
			return timeutil.DateFilter{}, fmt.Errorf("period must look like 7d or 24h")
		}
		return window.DateFilter(), nil
	}
	filter, err := timeutil.ParseDateFilter(from, to)
	switch {
	case errors.Is(err, timeutil.ErrInvalidDate):
		return timeutil.DateFilter{}, fmt.Errorf("dates must use the YYYY-MM-DD format")
	case errors.Is(err, timeutil.ErrInvalidRange):
		return timeutil.DateFilter{}, fmt.Errorf("dateFrom must not be after dateTo")
	}
	return filter, err
}

func (h *readHandler) stats(c *fiber.Ctx) error {
	const cacheKey = "stats"
	entry, hit := h.serveCached(c, cacheKey)
	if hit {
		return nil
	}
	stats, err := h.container.Leaderboard.Stats(httputil.UserContext(c))
	if err != nil {
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, "failed to load stats, please try again")
	}
	return h.writeCached(c, entry, stats)
}

func (h *readHandler) profile(c *fiber.Ctx) error {
	username := strings.TrimSpace(c.Params("username"))
	if !app.ValidUsername(username) {
		return httputil.WriteError(c, fiber.StatusBadRequest, app.ErrInvalidUsername.Error())
	}
	view, err := h.container.Submissions.Profile(httputil.UserContext(c), username)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	return c.JSON(view)
}

func (h *readHandler) submission(c *fiber.Ctx) error {
	sub, err := h.container.Submissions.Get(httputil.UserContext(c), c.Params("id"))
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	return c.JSON(sub)
}

func (h *readHandler) serveCached(c *fiber.Ctx, key string) (cache.Entry, bool) {
	rc := h.container.ResponseCache
	if !rc.Enabled() {
		return cache.Entry{}, false
	}
	entry, body, ok := rc.Lookup(httputil.UserContext(c), key)
	h.container.Observability.RecordCacheLookup(ok)
	if !ok {
		return entry, false
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	c.Set("X-Cache", "HIT")
	_ = c.Status(fiber.StatusOK).Send(body)
	return entry, true
}

func (h *readHandler) writeCached(c *fiber.Ctx, entry cache.Entry, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, "failed to encode response")
	}
	h.container.ResponseCache.Store(httputil.UserContext(c), entry, body)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(body)
}
