package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codemother/internal/models"
)

const (
	DefaultPexelsURL = "https://api.pexels.com/v1/search"
	DefaultUndrawURL = "https://undraw.co/_next/data"
	DefaultLimit     = 12
	defaultTimeout   = 10 * time.Second
)

// Source finds images of one category for a search query.
type Source interface {
	Category() models.ImageCategory
	Collect(ctx context.Context, query string) ([]models.ImageResource, error)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

func getJSON(ctx context.Context, hc *http.Client, endpoint string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %s: %s", req.URL.Host, resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PexelsSource searches stock photos for content images.
type PexelsSource struct {
	APIKey  string
	BaseURL string
	Limit   int
	HTTP    *http.Client
}

func NewPexelsSource(apiKey string) *PexelsSource {
	return &PexelsSource{APIKey: apiKey, BaseURL: DefaultPexelsURL, Limit: DefaultLimit, HTTP: defaultHTTPClient()}
}

func (s *PexelsSource) Category() models.ImageCategory { return models.ImageContent }

type pexelsResponse struct {
	Photos []struct {
		Alt string `json:"alt"`
		Src struct {
			Medium string `json:"medium"`
		} `json:"src"`
	} `json:"photos"`
}

func (s *PexelsSource) Collect(ctx context.Context, query string) ([]models.ImageResource, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("pexels: api key not configured")
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", fmt.Sprint(limitOr(s.Limit)))
	q.Set("page", "1")

	var body pexelsResponse
	header := http.Header{"Authorization": []string{s.APIKey}}
	if err := getJSON(ctx, httpOr(s.HTTP), s.BaseURL+"?"+q.Encode(), header, &body); err != nil {
		return nil, fmt.Errorf("pexels: %w", err)
	}
	out := make([]models.ImageResource, 0, len(body.Photos))
	for _, p := range body.Photos {
		if p.Src.Medium == "" {
			continue
		}
		desc := p.Alt
		if desc == "" {
			desc = query
		}
		out = append(out, models.ImageResource{Category: models.ImageContent, Description: desc, URL: p.Src.Medium})
	}
	return out, nil
}

// UndrawSource searches the unDraw illustration catalogue. BuildID is the site's current
// data build identifier.
type UndrawSource struct {
	BuildID string
	BaseURL string
	Limit   int
	HTTP    *http.Client
}

func NewUndrawSource(buildID string) *UndrawSource {
	return &UndrawSource{BuildID: buildID, BaseURL: DefaultUndrawURL, Limit: DefaultLimit, HTTP: defaultHTTPClient()}
}

func (s *UndrawSource) Category() models.ImageCategory { return models.ImageIllustration }

type undrawResponse struct {
	PageProps *struct {
		InitialResults []struct {
			Title string `json:"title"`
			Media string `json:"media"`
		} `json:"initialResults"`
	} `json:"pageProps"`
}

func (s *UndrawSource) Collect(ctx context.Context, query string) ([]models.ImageResource, error) {
	if s.BuildID == "" {
		return nil, fmt.Errorf("undraw: build id not configured")
	}
	term := url.PathEscape(query)
	endpoint := fmt.Sprintf("%s/%s/search/%s.json?term=%s", s.BaseURL, s.BuildID, term, url.QueryEscape(query))

	var body undrawResponse
	if err := getJSON(ctx, httpOr(s.HTTP), endpoint, nil, &body); err != nil {
		return nil, fmt.Errorf("undraw: %w", err)
	}
	if body.PageProps == nil {
		return nil, nil
	}
	var out []models.ImageResource
	for _, r := range body.PageProps.InitialResults {
		if len(out) == limitOr(s.Limit) {
			break
		}
		if strings.TrimSpace(r.Media) == "" {
			continue
		}
		title := r.Title
		if title == "" {
			title = "illustration"
		}
		out = append(out, models.ImageResource{Category: models.ImageIllustration, Description: title, URL: r.Media})
	}
	return out, nil
}

func limitOr(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return n
}

func httpOr(hc *http.Client) *http.Client {
	if hc == nil {
		return defaultHTTPClient()
	}
	return hc
}
