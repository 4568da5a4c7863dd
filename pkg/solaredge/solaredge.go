// Package solaredge retrieves quarter hour energy details for a site from the
// SolarEdge monitoring API.
package solaredge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/metersync/pkg/common"
	"github.com/raterudder/metersync/pkg/config"
	"github.com/raterudder/metersync/pkg/log"
	"github.com/raterudder/metersync/pkg/types"
)

const (
	// DefaultBaseURL is the public SolarEdge monitoring API.
	DefaultBaseURL = "https://monitoringapi.solaredge.com"

	// DefaultMaxSpan keeps each request under the one month limit the API
	// enforces for quarter hour resolution.
	DefaultMaxSpan = 28 * 24 * time.Hour

	timeUnitQuarterHour = "QUARTER_OF_AN_HOUR"
	dateLayout          = "2006-01-02 15:04:05"
)

// ErrFetch wraps every transport, status, and decode failure so callers can
// degrade to "no data" without inspecting the cause.
var ErrFetch = errors.New("solaredge fetch failed")

// Source is anything that can return a batch of readings for a window.
type Source interface {
	// EnergyDetails returns the readings in [start, end]. On error the
	// returned batch holds whatever was fetched before the failure.
	EnergyDetails(ctx context.Context, start, end time.Time) (types.Batch, error)
}

// Config holds what the client needs to reach a site.
type Config struct {
	BaseURL  string
	SiteID   string
	APIKey   string
	Location *time.Location
	MaxSpan  time.Duration
	Timeout  time.Duration
}

// Client implements Source against the SolarEdge monitoring API.
type Client struct {
	client   *http.Client
	baseURL  string
	siteID   string
	apiKey   string
	location *time.Location
	maxSpan  time.Duration
}

// New returns a Client. The site ID and API key must already be validated.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:  cfg.BaseURL,
		siteID:   cfg.SiteID,
		apiKey:   cfg.APIKey,
		location: cfg.Location,
		maxSpan:  cfg.MaxSpan,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.location == nil {
		c.location = time.Local
	}
	if c.maxSpan <= 0 {
		c.maxSpan = DefaultMaxSpan
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	c.client = common.HTTPClient(timeout)
	return c
}

// Configured returns a Client that is set up from cfg once lflag.Configure
// runs.
func Configured(cfg *config.Config) *Client {
	c := &Client{}
	lflag.Do(func() {
		*c = *New(Config{
			BaseURL:  cfg.SolarEdge.BaseURL,
			SiteID:   cfg.SolarEdge.SiteID,
			APIKey:   cfg.SolarEdge.APIKey,
			Location: cfg.Site.Location(),
			MaxSpan:  cfg.SolarEdge.MaxSpan,
			Timeout:  cfg.SolarEdge.Timeout,
		})
	})
	return c
}

type energyDetailsResponse struct {
	EnergyDetails struct {
		TimeUnit string `json:"timeUnit"`
		Unit     string `json:"unit"`
		Meters   []struct {
			Type   string `json:"type"`
			Values []struct {
				Date  string   `json:"date"`
				Value *float64 `json:"value"`
			} `json:"values"`
		} `json:"meters"`
	} `json:"energyDetails"`
}

// EnergyDetails implements Source. Windows longer than the max span are
// requested in consecutive chunks. The walk stops at the first failing chunk
// and returns the chunks fetched so far along with the error so the caller
// can still advance its watermark without leaving a gap.
func (c *Client) EnergyDetails(ctx context.Context, start, end time.Time) (types.Batch, error) {
	var batch types.Batch
	if start.After(end) {
		return batch, nil
	}

	for chunkStart := start; !chunkStart.After(end); {
		chunkEnd := chunkStart.Add(c.maxSpan)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		b, err := c.fetch(ctx, chunkStart, chunkEnd)
		if err != nil {
			log.Ctx(ctx).WarnContext(
				ctx,
				"stopping energy details walk",
				slog.Time("chunkStart", chunkStart),
				slog.Time("chunkEnd", chunkEnd),
				slog.Int("fetched", batch.Len()),
				slog.Any("error", err),
			)
			return batch, err
		}
		batch.Append(b)

		if !chunkEnd.Before(end) {
			break
		}
		// the API range is inclusive on both ends
		chunkStart = chunkEnd.Add(time.Second)
	}
	return batch, nil
}

func (c *Client) fetch(ctx context.Context, start, end time.Time) (types.Batch, error) {
	start = start.In(c.location)
	end = end.In(c.location)

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return types.Batch{}, fmt.Errorf("%w: invalid api url: %v", ErrFetch, err)
	}
	u.Path, err = url.JoinPath(u.Path, "site", c.siteID, "energyDetails")
	if err != nil {
		return types.Batch{}, fmt.Errorf("%w: invalid api path: %v", ErrFetch, err)
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("timeUnit", timeUnitQuarterHour)
	params.Set("startTime", start.Format(dateLayout))
	params.Set("endTime", end.Format(dateLayout))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return types.Batch{}, fmt.Errorf("%w: failed to create request: %v", ErrFetch, err)
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"fetching solaredge energy details",
		slog.String("siteID", c.siteID),
		slog.String("start", start.Format(dateLayout)),
		slog.String("end", end.Format(dateLayout)),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		// the url contains the api key so don't log the raw error
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return types.Batch{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Batch{}, fmt.Errorf("%w: status %d: %s", ErrFetch, resp.StatusCode, string(body))
	}

	var res energyDetailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode solaredge response", slog.Any("error", err))
		return types.Batch{}, fmt.Errorf("%w: failed to decode response: %v", ErrFetch, err)
	}

	batch := types.Batch{Unit: res.EnergyDetails.Unit}
	for _, m := range res.EnergyDetails.Meters {
		meter := types.Meter{Type: m.Type, Points: make([]types.Point, 0, len(m.Values))}
		for _, v := range m.Values {
			ts, err := time.ParseInLocation(dateLayout, v.Date, c.location)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "failed to parse solaredge date", slog.String("value", v.Date), slog.Any("error", err))
				continue
			}
			meter.Points = append(meter.Points, types.Point{Time: ts, Value: v.Value})
		}
		batch.Meters = append(batch.Meters, meter)
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched solaredge energy details",
		slog.Int("meters", len(batch.Meters)),
		slog.Int("points", batch.Len()),
	)
	return batch, nil
}
