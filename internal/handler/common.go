package handler

import (
	"strconv"
	"time"

	"household-ledger/internal/apperr"
	"household-ledger/internal/ledger"
	"household-ledger/internal/middleware"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
)

const maxPageSize = 100

// identity returns the caller identity or writes ERR_UNAUTHORIZED.
func identity(c *gin.Context) (util.Identity, bool) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		util.Fail(c, apperr.Unauthorized("not logged in"))
		return util.Identity{}, false
	}
	return id, true
}

func scopeOf(id util.Identity) ledger.Scope {
	return ledger.Scope{MasterAccountID: id.MasterAccountID, UserID: id.UserID}
}

// pathID parses the :id route parameter.
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		util.Fail(c, apperr.Validation("invalid id"))
		return 0, false
	}
	return uint(id), true
}

// paging reads page / page_size query parameters.
func paging(c *gin.Context, defaultSize int) (page, size, offset int) {
	if defaultSize <= 0 {
		defaultSize = 20
	}
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page <= 0 {
		page = 1
	}
	size, _ = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultSize)))
	if size <= 0 || size > maxPageSize {
		size = defaultSize
	}
	return page, size, (page - 1) * size
}

// dateRange reads start / end (YYYY-MM-DD). end is inclusive, so the
// returned upper bound is the start of the following day.
func dateRange(c *gin.Context) (start, end time.Time, hasStart, hasEnd bool, err error) {
	if s := c.Query("start"); s != "" {
		start, err = util.ParseDay(s)
		if err != nil {
			return start, end, false, false, apperr.Validation("start must be YYYY-MM-DD")
		}
		hasStart = true
	}
	if s := c.Query("end"); s != "" {
		end, err = util.ParseDay(s)
		if err != nil {
			return start, end, false, false, apperr.Validation("end must be YYYY-MM-DD")
		}
		end = end.AddDate(0, 0, 1)
		hasEnd = true
	}
	if hasStart && hasEnd && !start.Before(end) {
		return start, end, false, false, apperr.Validation("start must not be after end")
	}
	return start, end, hasStart, hasEnd, nil
}

// optionalBool parses a boolean query flag; ok is false when absent.
func optionalBool(c *gin.Context, key string) (value bool, ok bool, err error) {
	raw := c.Query(key)
	if raw == "" {
		return false, false, nil
	}
	value, err = strconv.ParseBool(raw)
	if err != nil {
		return false, false, apperr.Validation(key + " must be true or false")
	}
	return value, true, nil
}
