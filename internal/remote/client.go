// Package remote is the device-side data access layer: thin per-entity
// CRUD against the HTTP surface, one round trip per call, no retry and no
// backoff. Retries are the outbox's job, not this layer's.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"guardian-service/internal/config"
	"guardian-service/internal/model"
	"guardian-service/internal/util"
)

var (
	// ErrUnauthorized is surfaced distinctly so callers can prompt
	// re-login instead of silently falling back to cache.
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrNotFound     = errors.New("remote: not found")
	ErrConflict     = errors.New("remote: conflict")
)

// IdempotencyHeader carries the client-generated key that makes contact
// inserts safe to replay.
const IdempotencyHeader = "X-Idempotency-Key"

type errorBody struct {
	Error  string            `json:"error"`
	Fields []util.FieldError `json:"fields,omitempty"`
}

type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

func NewClient(cfg *config.RemoteConfig, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.AuthToken)

	logger.Info("Remote client initialized",
		zap.String("base_url", cfg.BaseURL))

	return &Client{http: httpClient, logger: logger}
}

// FetchUserInfo retrieves the {userInfo, medicalInfo, emergencyContacts}
// aggregate.
func (c *Client) FetchUserInfo(ctx context.Context) (*model.UserInfo, error) {
	var info model.UserInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&info).
		Get("/api/user-info")
	if err := c.checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &info, nil
}

// PushUserInfo sends a partial aggregate update.
func (c *Client) PushUserInfo(ctx context.Context, patch *model.UserInfoPatch) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(patch).
		Post("/api/user-info")
	return c.checkResponse(resp, err)
}

// PatchProfile updates profile fields only.
func (c *Client) PatchProfile(ctx context.Context, patch *model.ProfilePatch) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(patch).
		Patch("/api/user-info")
	return c.checkResponse(resp, err)
}

// ListContacts retrieves all emergency contacts.
func (c *Client) ListContacts(ctx context.Context) ([]model.EmergencyContact, error) {
	var contacts []model.EmergencyContact
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&contacts).
		Get("/api/contacts")
	if err := c.checkResponse(resp, err); err != nil {
		return nil, err
	}
	return contacts, nil
}

// CreateContact inserts a contact and returns the server row with its
// durable id. The idempotency key makes outbox replays single-shot: the
// server returns the previously assigned row for a key it has seen.
func (c *Client) CreateContact(ctx context.Context, contact *model.EmergencyContact, idempotencyKey string) (*model.EmergencyContact, error) {
	var created model.EmergencyContact
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(IdempotencyHeader, idempotencyKey).
		SetBody(contact).
		SetResult(&created).
		Post("/api/contacts")
	if err := c.checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteContact removes a contact by durable id.
func (c *Client) DeleteContact(ctx context.Context, contactID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/api/contacts/" + contactID)
	return c.checkResponse(resp, err)
}

// PushLocations uploads a batch of location points.
func (c *Client) PushLocations(ctx context.Context, points []model.LocationPoint) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(points).
		Post("/api/locations")
	return c.checkResponse(resp, err)
}

func (c *Client) checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("remote request failed: %w", err)
	}
	if resp.IsSuccess() {
		return nil
	}

	var body errorBody
	_ = json.Unmarshal(resp.Body(), &body)

	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusBadRequest:
		if len(body.Fields) > 0 {
			return &util.ValidationError{Fields: body.Fields}
		}
		return fmt.Errorf("remote rejected request: %s", body.Error)
	default:
		c.logger.Warn("Remote call failed",
			zap.Int("status", resp.StatusCode()),
			zap.String("path", resp.Request.URL),
			zap.String("error", body.Error))
		return fmt.Errorf("remote returned status %d: %s", resp.StatusCode(), body.Error)
	}
}
