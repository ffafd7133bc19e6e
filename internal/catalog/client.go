package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultTimeout = 5 * time.Second

	// localDateTime is how the catalog renders showtimes; it carries no zone.
	localDateTime = "2006-01-02T15:04:05"

	maxResponseBytes = 1 << 20
)

// Client reads showtimes from the catalog service over HTTP.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	location   *time.Location
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithLocation sets the zone catalog showtimes are interpreted in. UTC by default.
func WithLocation(loc *time.Location) ClientOption {
	return func(cl *Client) {
		if loc != nil {
			cl.location = loc
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("catalog url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type showtimeResponse struct {
	ID        int64               `json:"id"`
	MovieID   int64               `json:"movieId"`
	TheaterID int64               `json:"theaterId"`
	Showtime  string              `json:"showtime"`
	Price     decimal.NullDecimal `json:"price"`
	Movie     *struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	} `json:"movie"`
	Theater *struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"theater"`
}

func (c *Client) GetShowtime(ctx context.Context, showtimeID int64) (*domain.Showtime, error) {
	endpoint := c.baseURL.JoinPath("api", "v1", "showtimes", strconv.FormatInt(showtimeID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: catalog: %w", domain.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %d", domain.ErrShowtimeNotFound, showtimeID)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: catalog responded %d", domain.ErrDependencyUnavailable, resp.StatusCode)
	}

	var body showtimeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode catalog showtime: %w", domain.ErrDependencyUnavailable, err)
	}

	return c.toShowtime(showtimeID, body)
}

func (c *Client) toShowtime(showtimeID int64, body showtimeResponse) (*domain.Showtime, error) {
	if body.Showtime == "" || !body.Price.Valid || body.Movie == nil || body.Theater == nil {
		return nil, fmt.Errorf("%w: catalog showtime %d is incomplete", domain.ErrDependencyUnavailable, showtimeID)
	}

	start, err := c.parseStart(body.Showtime)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog showtime %d: %w", domain.ErrDependencyUnavailable, showtimeID, err)
	}

	id := body.ID
	if id == 0 {
		id = showtimeID
	}

	movieID := body.MovieID
	if movieID == 0 {
		movieID = body.Movie.ID
	}

	theaterID := body.TheaterID
	if theaterID == 0 {
		theaterID = body.Theater.ID
	}

	return &domain.Showtime{
		ID:          id,
		MovieID:     movieID,
		MovieTitle:  body.Movie.Title,
		TheaterID:   theaterID,
		TheaterName: body.Theater.Name,
		StartTime:   start,
		Price:       body.Price.Decimal,
	}, nil
}

func (c *Client) parseStart(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	t, err := time.ParseInLocation(localDateTime, s, c.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse showtime %q: %w", s, err)
	}

	return t, nil
}
