// Package assembly reads legislative notices from the National Assembly
// open-data API.
package assembly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/legislation"
	"github.com/JakeFAU/legisnotice/internal/metrics"
)

// MissingContent is the content placeholder for API notices, which carry no body text.
const MissingContent = "(내용 없음)"

// Result codes returned in the RESULT envelope.
const (
	codeOK     = "INFO-000"
	codeNoData = "INFO-200"
)

// ErrAPI is returned when the API answers with an error result code.
var ErrAPI = errors.New("assembly api error")

// Config points the client at the notice service.
type Config struct {
	BaseURL  string
	Key      string
	PageSize int
	// MaxPages stops pagination if the API never returns an empty page.
	MaxPages int
}

// Client pages through the notice service.
type Client struct {
	fetcher  legislation.Fetcher
	base     *url.URL
	service  string
	key      string
	pageSize int
	maxPages int
	logger   *zap.Logger
}

// New builds a Client. The service name is the last path segment of BaseURL.
func New(cfg Config, fetcher legislation.Fetcher, logger *zap.Logger) (*Client, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("assembly client: fetcher is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("assembly client: invalid base url %q", cfg.BaseURL)
	}
	service := path.Base(strings.TrimRight(u.Path, "/"))
	if service == "." || service == "/" {
		return nil, fmt.Errorf("assembly client: base url %q has no service name", cfg.BaseURL)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		fetcher:  fetcher,
		base:     u,
		service:  service,
		key:      cfg.Key,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		logger:   logger.Named("assembly"),
	}, nil
}

type apiResult struct {
	Code    string `json:"CODE"`
	Message string `json:"MESSAGE"`
}

type apiRow struct {
	BillNo        string `json:"BILL_NO"`
	BillName      string `json:"BILL_NAME"`
	LinkURL       string `json:"LINK_URL"`
	CurrCommittee string `json:"CURR_COMMITTEE"`
	Proposer      string `json:"PROPOSER"`
	NoticeStart   string `json:"NOTI_ST_DT"`
	NoticeEnd     string `json:"NOTI_ED_DT"`
}

type apiSection struct {
	Head []struct {
		Result *apiResult `json:"RESULT"`
	} `json:"head"`
	Row []apiRow `json:"row"`
}

// FetchNotices returns the notices whose comment period starts on target,
// keyed by bill number. Any page failure fails the whole call.
func (c *Client) FetchNotices(ctx context.Context, target string) (map[string]legislation.RawNotice, error) {
	out := make(map[string]legislation.RawNotice)
	seen := 0
	for page := 1; ; page++ {
		if page > c.maxPages {
			c.logger.Warn("api page ceiling reached", zap.Int("page", c.maxPages), zap.Int("count", seen))
			break
		}
		rows, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		seen += len(rows)
		for _, r := range rows {
			if strings.TrimSpace(r.NoticeStart) != target {
				continue
			}
			billNo := strings.TrimSpace(r.BillNo)
			if billNo == "" {
				continue
			}
			out[billNo] = legislation.RawNotice{
				BillID:    billNo,
				Title:     strings.TrimSpace(r.BillName),
				Committee: strings.TrimSpace(r.CurrCommittee),
				Proposer:  strings.TrimSpace(r.Proposer),
				EndDate:   strings.TrimSpace(r.NoticeEnd),
				Content:   MissingContent,
				LinkURL:   strings.TrimSpace(r.LinkURL),
				Source:    legislation.SourceNational,
			}
		}
	}
	c.logger.Info("api notices fetched", zap.Int("count", len(out)), zap.Int("rows", seen), zap.String("target_date", target))
	return out, nil
}

func (c *Client) pageURL(page int) string {
	u := *c.base
	q := u.Query()
	q.Set("KEY", c.key)
	q.Set("Type", "json")
	q.Set("pIndex", strconv.Itoa(page))
	q.Set("pSize", strconv.Itoa(c.pageSize))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) fetchPage(ctx context.Context, page int) ([]apiRow, error) {
	pageURL := c.pageURL(page)
	body, err := c.fetcher.Fetch(ctx, pageURL)
	metrics.ObservePageFetch(string(legislation.SourceNational), "api", pageURL, len(body), err)
	if err != nil {
		return nil, fmt.Errorf("fetch api page %d: %w", page, err)
	}
	rows, err := c.decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode api page %d: %w", page, err)
	}
	return rows, nil
}

func (c *Client) decode(body []byte) ([]apiRow, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	// Empty results and request errors come back as a bare RESULT object.
	if raw, ok := envelope["RESULT"]; ok {
		var res apiResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		return nil, checkResult(res)
	}
	raw, ok := envelope[c.service]
	if !ok {
		return nil, fmt.Errorf("response has no %q section", c.service)
	}
	var sections []apiSection
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("unmarshal sections: %w", err)
	}
	var rows []apiRow
	for _, s := range sections {
		for _, h := range s.Head {
			if h.Result != nil {
				if err := checkResult(*h.Result); err != nil {
					return nil, err
				}
			}
		}
		rows = append(rows, s.Row...)
	}
	return rows, nil
}

func checkResult(res apiResult) error {
	switch res.Code {
	case codeOK, codeNoData:
		return nil
	default:
		return fmt.Errorf("%w: %s %s", ErrAPI, res.Code, res.Message)
	}
}
