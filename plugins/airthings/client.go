package airthings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshp123/gohome-airthings/internal/oauth"
	"github.com/joshp123/gohome-airthings/internal/rate"
)

const (
	requestTimeout = 15 * time.Second
	providerID     = "airthings"
)

// TokenSource hands out bearer tokens for API calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate()
}

// Client talks to the Airthings consumer REST API.
type Client struct {
	baseURL string
	unit    Unit
	serials []string
	tokens  TokenSource
	logger  zerolog.Logger

	httpClient *http.Client
}

// NewClient builds a client that exchanges the configured credentials for
// tokens at cfg.AuthURL.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	manager, err := oauth.NewManager(oauth.Declaration{
		Provider: providerID,
		TokenURL: cfg.AuthURL,
		Scope:    cfg.Scope,
	}, cfg.Credentials)
	if err != nil {
		return nil, err
	}
	return NewClientWithTokens(cfg, manager, logger)
}

func NewClientWithTokens(cfg Config, tokens TokenSource, logger zerolog.Logger) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	cfg = cfg.withDefaults()
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("airthings base_url: %w", err)
	}

	limits := rate.Provider(providerID).
		MaxRequestsPer(rate.Hour, cfg.RequestsPerHour).
		BudgetFloor(rate.Hour, 1).
		ReadHeaders(rate.StandardHeaders(rate.Hour))

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		unit:       cfg.Unit,
		serials:    cfg.SerialNumbers,
		tokens:     tokens,
		logger:     logger.With().Str("plugin", providerID).Logger(),
		httpClient: rate.WrapHTTP(limits, &http.Client{Timeout: requestTimeout}),
	}, nil
}

// EnsureToken makes sure a valid access token is cached.
func (c *Client) EnsureToken(ctx context.Context) error {
	if _, err := c.tokens.AccessToken(ctx); err != nil {
		if ctx.Err() != nil {
			return canceled(ctx)
		}
		return err
	}
	return nil
}

// Accounts lists the account identifiers visible to the credentials.
func (c *Client) Accounts(ctx context.Context) ([]string, error) {
	var resp *struct {
		Accounts []struct {
			ID any `json:"id"`
		} `json:"accounts"`
	}
	const path = "/v1/accounts"
	if err := c.getJSON(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, emptyPayload(path)
	}

	ids := make([]string, 0, len(resp.Accounts))
	for _, account := range resp.Accounts {
		id, ok := account.ID.(string)
		if !ok || id == "" {
			c.logger.Debug().Interface("id", account.ID).Msg("dropping account without id")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Devices lists the devices registered to an account.
func (c *Client) Devices(ctx context.Context, accountID string) ([]DeviceRecord, error) {
	var resp *struct {
		Devices []struct {
			SerialNumber any      `json:"serialNumber"`
			Home         *string  `json:"home"`
			Name         string   `json:"name"`
			Type         string   `json:"type"`
			Sensors      []string `json:"sensors"`
		} `json:"devices"`
	}
	path := "/v1/accounts/" + url.PathEscape(accountID) + "/devices"
	if err := c.getJSON(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, emptyPayload(path)
	}

	devices := make([]DeviceRecord, 0, len(resp.Devices))
	for _, device := range resp.Devices {
		serial, ok := device.SerialNumber.(string)
		if !ok || serial == "" {
			c.logger.Debug().Str("account", accountID).Str("name", device.Name).Msg("dropping device without serial number")
			continue
		}
		devices = append(devices, DeviceRecord{
			SerialNumber: serial,
			Name:         device.Name,
			Home:         device.Home,
			Type:         device.Type,
			Sensors:      device.Sensors,
		})
	}
	return devices, nil
}

// SensorsPage fetches one page of current readings for an account. Pages
// start at 1.
func (c *Client) SensorsPage(ctx context.Context, accountID string, page int) (SensorsPage, error) {
	var resp *struct {
		Results []struct {
			SerialNumber any `json:"serialNumber"`
			Sensors      []*struct {
				SensorType *string  `json:"sensorType"`
				Value      *float64 `json:"value"`
				Unit       string   `json:"unit"`
			} `json:"sensors"`
			Recorded          *string  `json:"recorded"`
			BatteryPercentage *float64 `json:"batteryPercentage"`
		} `json:"results"`
		HasNext    *bool `json:"hasNext"`
		TotalPages int   `json:"totalPages"`
	}

	query := url.Values{}
	query.Set("pageNumber", strconv.Itoa(page))
	query.Set("unit", string(c.unit))
	for _, sn := range c.serials {
		query.Add("sn", sn)
	}

	path := "/v1/accounts/" + url.PathEscape(accountID) + "/sensors"
	if err := c.getJSON(ctx, path, query, &resp); err != nil {
		return SensorsPage{}, err
	}
	if resp == nil {
		return SensorsPage{}, emptyPayload(path)
	}

	out := SensorsPage{
		Results:    make([]SensorsRecord, 0, len(resp.Results)),
		HasNext:    resp.HasNext != nil && *resp.HasNext,
		TotalPages: resp.TotalPages,
	}
	for _, result := range resp.Results {
		serial, _ := result.SerialNumber.(string)
		record := SensorsRecord{
			SerialNumber: serial,
			Sensors:      make([]SensorReading, 0, len(result.Sensors)),
			Recorded:     result.Recorded,
		}
		for _, sensor := range result.Sensors {
			if sensor == nil || sensor.SensorType == nil || sensor.Value == nil {
				c.logger.Debug().Str("serial", serial).Msg("dropping incomplete sensor reading")
				continue
			}
			record.Sensors = append(record.Sensors, SensorReading{
				Kind:  *sensor.SensorType,
				Value: *sensor.Value,
				Unit:  sensor.Unit,
			})
		}
		if result.BatteryPercentage != nil {
			pct := int(math.Round(*result.BatteryPercentage))
			record.BatteryPercentage = &pct
		}
		out.Results = append(out.Results, record)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest any) error {
	payload, err := c.getBytes(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return UnexpectedPayloadError{Path: path, Body: string(payload), Err: err}
	}
	return nil
}

func (c *Client) getBytes(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, canceled(ctx)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceled(ctx)
		}
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceled(ctx)
		}
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceled(ctx)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return payload, nil
	case http.StatusTooManyRequests:
		return nil, apiError(resp.StatusCode, payload)
	case http.StatusUnauthorized:
		c.tokens.Invalidate()
	}
	return nil, UnexpectedStatusError{Status: resp.StatusCode, Body: string(payload)}
}

func apiError(status int, payload []byte) APIError {
	var body struct {
		Message *string `json:"message"`
	}
	message := "unknown error"
	if err := json.Unmarshal(payload, &body); err == nil && body.Message != nil && *body.Message != "" {
		message = *body.Message
	}
	return APIError{Status: status, Message: message}
}

func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
}

func emptyPayload(path string) error {
	return UnexpectedPayloadError{Path: path, Body: "null", Err: errors.New("empty payload")}
}
