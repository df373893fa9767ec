package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/pos"
	"github.com/frankstormy/pincafe/internal/schema"
	"github.com/frankstormy/pincafe/internal/store"
	pcsync "github.com/frankstormy/pincafe/internal/sync"
	"github.com/frankstormy/pincafe/internal/transport"
)

const headerRequestID = "X-Request-ID"

// requestID tags the request and its logger with an id, reusing the
// caller's when present.
func (s *Server) requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Response().Header().Set(headerRequestID, id)
		c.Set("logger", s.logger.With(zap.String("request_id", id)))
		return next(c)
	}
}

func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			// Let the error handler write the status before it is recorded.
			c.Error(err)
		}
		s.metrics.Observe(c.Request().Method, c.Path(), strconv.Itoa(c.Response().Status), time.Since(start))
		return nil
	}
}

func loggerFrom(c echo.Context) *zap.Logger {
	if l, ok := c.Get("logger").(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, schema.ErrValidation), errors.Is(err, schema.ErrImportRejected):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pos.ErrCategoryInUse), errors.Is(err, pos.ErrTableBusy),
		errors.Is(err, pos.ErrDuplicate), errors.Is(err, store.ErrConflict),
		errors.Is(err, pcsync.ErrSyncDisabled):
		return http.StatusConflict
	case errors.Is(err, store.ErrStorageUnavailable), errors.Is(err, transport.ErrTransportUnreachable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}

	log := loggerFrom(c)
	if code >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.Path()), zap.Int("status", code), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("path", c.Path()), zap.Int("status", code), zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, echo.Map{"error": msg})
	}
	if err != nil {
		log.Warn("failed to write error response", zap.Error(err))
	}
}
