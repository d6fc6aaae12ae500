package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/assets"
	"github.com/fyrsmithlabs/designd/internal/session"
	"github.com/fyrsmithlabs/designd/internal/vectorstore"
	"github.com/fyrsmithlabs/designd/internal/workflow"
)

// Error message prefixes per endpoint family.
const (
	analysisErrorPrefix = "분석 중 오류: "
	answerErrorPrefix   = "답변 중 오류: "
	invalidImageMessage = "유효하지 않은 이미지입니다."
)

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrInvalidStage):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidInput), errors.Is(err, assets.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound), errors.Is(err, vectorstore.ErrCollectionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// toHTTPError converts a driver error into an echo HTTPError.
func (s *Server) toHTTPError(c echo.Context, prefix string, err error) error {
	status := statusFor(err)
	fields := []zap.Field{zap.Int("status", status), zap.String("path", c.Path()), zap.Error(err)}
	if status >= http.StatusInternalServerError {
		s.logger.Error("chat request failed", fields...)
	} else {
		s.logger.Info("chat request rejected", fields...)
	}
	return echo.NewHTTPError(status, prefix+err.Error()).SetInternal(err)
}
