package http

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/assets"
)

const (
	defaultImageQuery = "이 제품과 유사한 디자인을 분석해줘"
	selectHint        = "상세 비교할 디자인 번호를 선택하세요 (POST /chat/select)"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Service: "designd"})
}

// handleImage runs the image branch up to the selection point.
func (s *Server) handleImage(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "image is required")
	}
	if file.Size > s.config.MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image is too large")
	}

	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, invalidImageMessage)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, s.config.MaxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, invalidImageMessage)
	}
	if int64(len(data)) > s.config.MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image is too large")
	}
	if _, err := assets.Validate(data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, invalidImageMessage).SetInternal(err)
	}
	s.metrics.RecordUpload(c, int64(len(data)))

	query := c.FormValue("user_query")
	if query == "" {
		query = defaultImageQuery
	}

	res, err := s.driver.StartImageSession(c.Request().Context(), data, file.Filename, query)
	if err != nil {
		return s.toHTTPError(c, analysisErrorPrefix, err)
	}

	designs := make([]SimilarDesign, 0, len(res.Results))
	for _, r := range res.Results {
		d := SimilarDesign{
			Index:             r.Index,
			DesignID:          r.DesignID,
			ApplicationNumber: r.ApplicationNumber,
			ArticleName:       r.ArticleName,
			AdmstStat:         r.AdmstStat,
			Distance:          r.Distance,
		}
		if r.ImagePath != "" {
			if b64, err := assets.ReadBase64(r.ImagePath); err == nil {
				d.ImageBase64 = &b64
			} else {
				s.logger.Warn("failed to encode design image", zap.String("design_id", r.DesignID), zap.Error(err))
			}
		}
		designs = append(designs, d)
	}

	return c.JSON(http.StatusOK, ImageResponse{
		Success:        true,
		ThreadID:       res.SessionID,
		InputAnalysis:  res.InputAnalysis,
		SimilarDesigns: designs,
		Message:        selectHint,
		Options:        res.Options,
	})
}

// handleSelect resumes a suspended image session.
func (s *Server) handleSelect(c echo.Context) error {
	req, err := bindSelect(c)
	if err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := s.driver.ResumeWithSelection(c.Request().Context(), req.ThreadID, *req.SelectedIndex)
	if err != nil {
		return s.toHTTPError(c, analysisErrorPrefix, err)
	}

	return c.JSON(http.StatusOK, SelectResponse{
		Success:            true,
		ThreadID:           res.SessionID,
		DetailedComparison: res.DetailedComparison,
		FinalReport:        res.FinalReport,
	})
}

// bindSelect reads a JSON body or form fields. An absent selected_index
// stays nil so validation can tell it apart from zero.
func bindSelect(c echo.Context) (SelectRequest, error) {
	var req SelectRequest
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := c.Bind(&req); err != nil {
			return req, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		return req, nil
	}

	req.ThreadID = c.FormValue("thread_id")
	if v := c.FormValue("selected_index"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, echo.NewHTTPError(http.StatusBadRequest, "selected_index must be an integer")
		}
		req.SelectedIndex = &n
	}
	return req, nil
}

// handleText answers one text turn.
func (s *Server) handleText(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := s.driver.AnswerText(c.Request().Context(), req.ThreadID, req.TextQuery)
	if err != nil {
		return s.toHTTPError(c, answerErrorPrefix, err)
	}

	return c.JSON(http.StatusOK, TextResponse{
		Success:  true,
		ThreadID: res.SessionID,
		Answer:   res.Answer,
		Turn:     res.Turn,
	})
}
