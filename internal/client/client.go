// Package client is a Go client for the ReportaCiudad API, used by tooling and tests.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reportaciudad/internal/auth"
	"reportaciudad/internal/badges"
	"reportaciudad/internal/geo"
	"reportaciudad/internal/models"
	"reportaciudad/internal/moderation"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

var codeErrors = map[string]error{
	"INVALID_REASON":      moderation.ErrInvalidReason,
	"INVALID_STATUS":      moderation.ErrInvalidStatus,
	"NOT_FOUND":           moderation.ErrNotFound,
	"ALREADY_PROCESSED":   moderation.ErrAlreadyProcessed,
	"INVALID_TRANSITION":  moderation.ErrInvalidTransition,
	"INVALID_CREDENTIALS": auth.ErrInvalidCredentials,
	"PENDING_VALIDATION":  auth.ErrPendingValidation,
	"ACCOUNT_DISABLED":    auth.ErrAccountDisabled,
	"INVALID_COORDINATES": geo.ErrInvalidCoordinates,
}

// Unwrap lets errors.Is match the server error code against the domain sentinels.
func (e *APIError) Unwrap() error {
	return codeErrors[e.Code]
}

// Client 不做自动重试，传输错误原样返回
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

func New(baseURL string, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient, logger: logger}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// MapReport 地图上报条目
type MapReport struct {
	ID          string         `json:"id"`
	Title       string         `json:"titulo"`
	Coordinates geo.Coordinate `json:"coordenadas"`
	Status      string         `json:"estado"`
	Category    string         `json:"categoria"`
	CreatedAt   time.Time      `json:"fecha_creacion"`
}

func (r MapReport) ClusterID() string        { return r.ID }
func (r MapReport) Position() geo.Coordinate { return r.Coordinates }

// do 发送请求。path 中的 {id} 由 resty 按 params 填充并转义
func (c *Client) do(ctx context.Context, method, path string, params map[string]string, body, out interface{}) error {
	req := c.http.R().SetContext(ctx).SetPathParams(params)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}

	var env envelope
	if len(resp.Body()) > 0 {
		if jsonErr := json.Unmarshal(resp.Body(), &env); jsonErr != nil && !resp.IsError() {
			return fmt.Errorf("decode %s %s: %w", method, path, jsonErr)
		}
	}
	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode(), Code: env.Error, Message: env.Message}
		c.logger.Debug("api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", apiErr.Status),
			zap.String("code", apiErr.Code))
		return apiErr
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s %s data: %w", method, path, err)
		}
	}
	return nil
}

// Login stores the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	var session auth.Session
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, map[string]string{"email": email, "password": password}, &session)
	if err != nil {
		return nil, err
	}
	c.SetToken(session.Token)
	return &session, nil
}

func (c *Client) PendingReports(ctx context.Context, page, pageSize int) (moderation.Page[models.Report], error) {
	var out moderation.Page[models.Report]
	err := c.do(ctx, http.MethodGet, "/admin/reports/pending?"+pageQuery(page, pageSize), nil, nil, &out)
	return out, err
}

func (c *Client) ReportStats(ctx context.Context) (models.ReportStats, error) {
	var out models.ReportStats
	err := c.do(ctx, http.MethodGet, "/admin/reports/stats", nil, nil, &out)
	return out, err
}

func (c *Client) ValidateReport(ctx context.Context, id, comments string) error {
	return c.do(ctx, http.MethodPost, "/admin/reports/{id}/validate", idParam(id), map[string]string{"comentarios": comments}, nil)
}

// RejectReport fails locally, without a request, when reason is blank.
func (c *Client) RejectReport(ctx context.Context, id, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return moderation.ErrInvalidReason
	}
	return c.do(ctx, http.MethodPost, "/admin/reports/{id}/reject", idParam(id), map[string]string{"motivo": reason}, nil)
}

func (c *Client) UpdateReportStatus(ctx context.Context, id string, to models.ReportStatus, comments string) error {
	body := map[string]string{"estado": string(to), "comentarios": comments}
	return c.do(ctx, http.MethodPost, "/admin/reports/{id}/status", idParam(id), body, nil)
}

func (c *Client) PendingUsers(ctx context.Context, page, pageSize int) (moderation.Page[models.User], error) {
	var out moderation.Page[models.User]
	err := c.do(ctx, http.MethodGet, "/admin/users/pending?"+pageQuery(page, pageSize), nil, nil, &out)
	return out, err
}

func (c *Client) ValidateUser(ctx context.Context, id, comments string) error {
	return c.do(ctx, http.MethodPost, "/admin/users/{id}/validate", idParam(id), map[string]string{"comentarios": comments}, nil)
}

// RejectUser fails locally, without a request, when reason is blank.
func (c *Client) RejectUser(ctx context.Context, id, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return moderation.ErrInvalidReason
	}
	return c.do(ctx, http.MethodPost, "/admin/users/{id}/reject", idParam(id), map[string]string{"motivo": reason}, nil)
}

func (c *Client) Badges(ctx context.Context) (badges.Counts, error) {
	var out badges.Counts
	err := c.do(ctx, http.MethodGet, "/admin/badges", nil, nil, &out)
	return out, err
}

// MapReports 查询 center 周围 radiusKm 内已验证的上报
func (c *Client) MapReports(ctx context.Context, center geo.Coordinate, radiusKm float64, limit int) ([]MapReport, error) {
	path := fmt.Sprintf("/reportes/mapa?lat=%s&lng=%s&radio=%s&limite=%d",
		formatFloat(center.Latitude), formatFloat(center.Longitude), formatFloat(radiusKm), limit)
	var out struct {
		Reports []MapReport `json:"reportes"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Reports, nil
}

func idParam(id string) map[string]string {
	return map[string]string{"id": id}
}

func pageQuery(page, pageSize int) string {
	return "page=" + strconv.Itoa(page) + "&page_size=" + strconv.Itoa(pageSize)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
