// Package opendatasoft reads the Spanish administrative hierarchy from an
// OpenDataSoft Explore v2.1 records endpoint (georef-spain-municipio).
package opendatasoft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/couchcryptid/geo-cascade-service/internal/domain"
)

const (
	fieldRegion       = "acom_name"
	fieldProvince     = "prov_name"
	fieldMunicipality = "mun_name"
	fieldPoint        = "geo_point_2d"

	// pageSize is the Explore API maximum for a single records request.
	pageSize = 100
	// maxRecords caps offset+limit as the Explore API does.
	maxRecords = 10000

	hierarchyLimit = 20
)

// Client implements domain.CandidateLister and domain.HierarchyResolver.
type Client struct {
	rc     *resty.Client
	url    string
	logger *slog.Logger
}

// NewClient creates a client for the records endpoint at recordsURL.
func NewClient(recordsURL string, timeout time.Duration, logger *slog.Logger) *Client {
	rc := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)

	return &Client{rc: rc, url: strings.TrimRight(recordsURL, "/"), logger: logger}
}

// ListChildren returns the candidates at level under parentName, sorted by name.
func (c *Client) ListChildren(ctx context.Context, level domain.HierarchyLevel, parentName string) ([]domain.LocationRecord, error) {
	var q query
	switch level {
	case domain.Region:
		q = query{selectFields: fieldRegion, groupBy: fieldRegion, orderBy: fieldRegion}
	case domain.Province:
		q = query{selectFields: fieldProvince, where: equals(fieldRegion, parentName), groupBy: fieldProvince, orderBy: fieldProvince}
	case domain.Municipality:
		q = query{
			selectFields: fieldMunicipality + "," + fieldPoint,
			where:        equals(fieldProvince, parentName),
			orderBy:      fieldMunicipality,
		}
	default:
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidLevel, int(level))
	}

	rows, err := c.fetchAll(ctx, q)
	if err != nil {
		return nil, domain.NewTransportError("list "+level.String(), err)
	}

	out := make([]domain.LocationRecord, 0, len(rows))
	for _, row := range rows {
		rec := domain.LocationRecord{Level: level, ParentName: parentName}
		switch level {
		case domain.Region:
			rec.Name = row.Region.String()
			rec.ParentName = ""
		case domain.Province:
			rec.Name = row.Province.String()
		case domain.Municipality:
			rec.Name = row.Municipality.String()
			rec.Coordinates = row.Point.coordinates()
		}
		if rec.Name == "" {
			continue
		}
		out = append(out, rec)
	}
	c.logger.Debug("opendatasoft list", "level", level.String(), "parent", parentName, "count", len(out))
	return out, nil
}

// ResolveHierarchy returns every municipality named exactly name.
func (c *Client) ResolveHierarchy(ctx context.Context, name string) ([]domain.HierarchyRecord, error) {
	if name == "" {
		return nil, nil
	}
	page, err := c.fetchPage(ctx, query{
		selectFields: strings.Join([]string{fieldRegion, fieldProvince, fieldMunicipality, fieldPoint}, ","),
		where:        equals(fieldMunicipality, name),
	}, 0, hierarchyLimit)
	if err != nil {
		return nil, domain.NewTransportError("resolve hierarchy", err)
	}

	out := make([]domain.HierarchyRecord, 0, len(page.Results))
	for _, row := range page.Results {
		out = append(out, domain.HierarchyRecord{
			Region:       row.Region.String(),
			Province:     row.Province.String(),
			Municipality: row.Municipality.String(),
			Coordinates:  row.Point.coordinates(),
		})
	}
	return out, nil
}

type query struct {
	selectFields string
	where        string
	groupBy      string
	orderBy      string
}

// fetchAll pages through the result set until a short page or the API's
// offset ceiling.
func (c *Client) fetchAll(ctx context.Context, q query) ([]row, error) {
	var rows []row
	for offset := 0; offset+pageSize <= maxRecords; offset += pageSize {
		page, err := c.fetchPage(ctx, q, offset, pageSize)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page.Results...)
		if len(page.Results) < pageSize {
			break
		}
	}
	return rows, nil
}

func (c *Client) fetchPage(ctx context.Context, q query, offset, limit int) (*recordsResponse, error) {
	params := map[string]string{
		"select": q.selectFields,
		"limit":  strconv.Itoa(limit),
	}
	if offset > 0 {
		params["offset"] = strconv.Itoa(offset)
	}
	if q.where != "" {
		params["where"] = q.where
	}
	if q.groupBy != "" {
		params["group_by"] = q.groupBy
	}
	if q.orderBy != "" {
		params["order_by"] = q.orderBy
	}

	var body recordsResponse
	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("records request: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, parseError(resp)
	}
	return &body, nil
}

// equals builds an ODSQL equality filter with a double-quoted literal.
func equals(field, value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return fmt.Sprintf(`%s="%s"`, field, r.Replace(value))
}

func parseError(resp *resty.Response) error {
	var apiErr struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("opendatasoft API error: status %d: %s: %s", resp.StatusCode(), apiErr.ErrorCode, apiErr.Message)
	}
	return fmt.Errorf("opendatasoft API error: status %d: %s", resp.StatusCode(), bytes.TrimSpace(resp.Body()))
}

// Explore API response types.

type recordsResponse struct {
	TotalCount int   `json:"total_count"`
	Results    []row `json:"results"`
}

type row struct {
	Region       flexString `json:"acom_name"`
	Province     flexString `json:"prov_name"`
	Municipality flexString `json:"mun_name"`
	Point        *geoPoint  `json:"geo_point_2d"`
}

type geoPoint struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

func (p *geoPoint) coordinates() *domain.Coordinates {
	if p == nil {
		return nil
	}
	return &domain.Coordinates{Lon: p.Lon, Lat: p.Lat}
}

// flexString accepts either "name" or ["name"]; some dataset exports wrap
// text fields in single-element arrays.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var arr []string
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		if len(arr) > 0 {
			*s = flexString(arr[0])
		} else {
			*s = ""
		}
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	*s = flexString(str)
	return nil
}

func (s flexString) String() string {
	return strings.TrimSpace(string(s))
}
