package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/dispatch"
	"github.com/nvr-ai/go-detect/store"
	"github.com/pkg/errors"
)

type handlers struct {
	service *dispatch.Service
	records Records
	timeout time.Duration
}

// analyze handles POST /api/detections/analyze.
func (h *handlers) analyze(c echo.Context) error {
	req, err := readAnalyzeRequest(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	resp, err := h.service.Analyze(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func readAnalyzeRequest(c echo.Context) (dispatch.Request, error) {
	req := dispatch.Request{
		Backend:           c.FormValue("backend"),
		LightingCondition: c.FormValue("lighting_condition"),
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return req, &detection.ValidationFailure{Field: "image", Reason: "an image file is required"}
	}
	f, err := fh.Open()
	if err != nil {
		return req, errors.Wrap(err, "failed to open upload")
	}
	defer f.Close()

	req.Image, err = io.ReadAll(f)
	if err != nil {
		return req, errors.Wrap(err, "failed to read upload")
	}
	req.Filename = fh.Filename

	if v := c.FormValue("save_image"); v != "" {
		req.SaveImage, err = strconv.ParseBool(v)
		if err != nil {
			return req, &detection.ValidationFailure{Field: "save_image", Reason: "must be a boolean"}
		}
	}

	if v := c.FormValue("metadata"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Metadata); err != nil {
			return req, &detection.ValidationFailure{Field: "metadata", Reason: "must be a JSON object"}
		}
	}
	return req, nil
}

// listDetections handles GET /api/detections?limit=&offset=&backend=.
func (h *handlers) listDetections(c echo.Context) error {
	if h.records == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "no record store configured")
	}

	query := store.ListQuery{Backend: c.QueryParam("backend")}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{name: "limit", dst: &query.Limit},
		{name: "offset", dst: &query.Offset},
	} {
		v := c.QueryParam(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return &detection.ValidationFailure{Field: p.name, Reason: "must be a non-negative integer"}
		}
		*p.dst = n
	}

	page, err := h.records.List(c.Request().Context(), query)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// getDetection handles GET /api/detections/:id.
func (h *handlers) getDetection(c echo.Context) error {
	if h.records == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "no record store configured")
	}
	rec, err := h.records.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// modelInfo handles GET /api/models/info?backend=.
func (h *handlers) modelInfo(c echo.Context) error {
	selector := c.QueryParam("backend")
	if selector == "" {
		selector = string(detection.BackendLocal)
	}
	info, err := h.service.Dispatcher().Describe(selector)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}
