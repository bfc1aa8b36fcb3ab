package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/globaltime"
	"horse.fit/chatsense/internal/service"
)

const maxBatchItems = 100

type requestOptions struct {
	ForceRefresh        bool    `json:"force_refresh"`
	TimeoutMs           int64   `json:"timeout_ms"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

func (o requestOptions) toService() service.RequestOptions {
	return service.RequestOptions{
		ForceRefresh:        o.ForceRefresh,
		Timeout:             time.Duration(o.TimeoutMs) * time.Millisecond,
		ConfidenceThreshold: o.ConfidenceThreshold,
	}
}

func (o requestOptions) validate(fields map[string]string) {
	if o.TimeoutMs < 0 {
		fields["options.timeout_ms"] = "must be >= 0"
	}
	if o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1 {
		fields["options.confidence_threshold"] = "must be within [0, 1]"
	}
}

type translateRequest struct {
	Text            string         `json:"text"`
	SourceLanguage  string         `json:"source_language"`
	TargetLanguage  string         `json:"target_language"`
	SubjectID       string         `json:"subject_id"`
	CulturalContext string         `json:"cultural_context"`
	Options         requestOptions `json:"options"`
}

func (r translateRequest) serviceOptions() service.RequestOptions {
	opts := r.Options.toService()
	opts.CulturalContext = r.CulturalContext
	return opts
}

type batchRequest struct {
	Items []translateRequest `json:"items"`
}

type batchItem struct {
	Index  int             `json:"index"`
	Status string          `json:"status"`
	Result analysis.Result `json:"result"`
	Error  string          `json:"error,omitempty"`
}

type emotionRequest struct {
	Text            string         `json:"text"`
	SubjectID       string         `json:"subject_id"`
	Language        string         `json:"language"`
	CulturalContext string         `json:"cultural_context"`
	Options         requestOptions `json:"options"`
}

type providerToggle struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "chatsense",
		"online":  s.backend.Online(c.Request().Context()),
		"time":    globaltime.System.Now().UTC(),
	})
}

func (s *Server) handleTranslate(c echo.Context) error {
	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid JSON body", nil)
	}
	fields := map[string]string{}
	req.Options.validate(fields)
	if len(fields) > 0 {
		return failValidation(c, fields)
	}

	result, err := s.backend.AnalyzeTranslation(c.Request().Context(), req.Text, req.SourceLanguage, req.TargetLanguage, req.serviceOptions())
	if err != nil {
		return s.writeAnalysisError(c, err)
	}
	return success(c, result)
}

func (s *Server) handleTranslateDraft(c echo.Context) error {
	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid JSON body", nil)
	}
	fields := map[string]string{}
	if strings.TrimSpace(req.SubjectID) == "" {
		fields["subject_id"] = "is required"
	}
	req.Options.validate(fields)
	if len(fields) > 0 {
		return failValidation(c, fields)
	}

	result, err := s.backend.DraftTranslation(c.Request().Context(), req.SubjectID, req.Text, req.SourceLanguage, req.TargetLanguage, req.serviceOptions())
	if err != nil {
		return s.writeAnalysisError(c, err)
	}
	return success(c, result)
}

func (s *Server) handleTranslateBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid JSON body", nil)
	}
	switch {
	case len(req.Items) == 0:
		return failValidation(c, map[string]string{"items": "at least one item is required"})
	case len(req.Items) > maxBatchItems:
		return failValidation(c, map[string]string{"items": "too many items"})
	}

	items := make([]service.TranslationItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.TranslationItem{
			Text:           item.Text,
			SourceLanguage: item.SourceLanguage,
			TargetLanguage: item.TargetLanguage,
			Options:        item.serviceOptions(),
		}
	}

	outcomes := s.backend.BatchTranslate(c.Request().Context(), items)
	out := make([]batchItem, len(outcomes))
	for i, o := range outcomes {
		out[i] = batchItem{Index: i, Status: "fulfilled", Result: o.Result}
		if o.Err != nil {
			out[i].Status = "rejected"
			out[i].Error = o.Err.Error()
		}
	}
	return success(c, map[string]any{
		"items": out,
	})
}

func (s *Server) handleEmotion(c echo.Context) error {
	var req emotionRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid JSON body", nil)
	}
	fields := map[string]string{}
	req.Options.validate(fields)
	if len(fields) > 0 {
		return failValidation(c, fields)
	}

	opts := req.Options.toService()
	opts.Language = req.Language
	opts.CulturalContext = req.CulturalContext
	result, err := s.backend.AnalyzeEmotion(c.Request().Context(), req.Text, req.SubjectID, opts)
	if err != nil {
		return s.writeAnalysisError(c, err)
	}
	return success(c, result)
}

func (s *Server) handleClearCache(c echo.Context) error {
	removed, err := s.backend.ClearCache(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("clear cache failed")
		return internalError(c, "Failed to clear cache")
	}
	return success(c, map[string]any{
		"removed": removed,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	return success(c, s.backend.UsageStats(c.Request().Context()))
}

func (s *Server) handleSetProvider(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	var req providerToggle
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid JSON body", nil)
	}
	if req.Enabled == nil {
		return failValidation(c, map[string]string{"enabled": "is required"})
	}
	if err := s.backend.SetProviderEnabled(id, *req.Enabled); err != nil {
		return failNotFound(c, err.Error())
	}
	return success(c, map[string]any{
		"id":      id,
		"enabled": *req.Enabled,
	})
}
