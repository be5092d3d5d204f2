package reliefapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/Trung-Nam-2512/floodsos-sub001/feature"
)

var (
	log = logrus.WithField("module", "relief-api")

	errNotOK = fmt.Errorf("server reported failure")
)

const defaultTimeout = 10 * time.Second

// Client talks to the relief persistence API. All calls take a context
// and return explicit errors; retry policy belongs to the caller.
type Client struct {
	cfg  *Config
	http *http.Client
}

func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// FeaturesURL is the endpoint polled by the refresher.
func (c *Client) FeaturesURL() string {
	return c.cfg.BaseURL + "/features"
}

// ListFeatures fetches the full committed dataset.
func (c *Client) ListFeatures(ctx context.Context) ([]feature.Feature, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/features", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errNotOK
	}
	return decodeRecords(resp.Data), nil
}

// CreateFeature persists a new geometry and returns the committed feature
// under its server-assigned id.
func (c *Client) CreateFeature(ctx context.Context, g orb.Geometry, props geojson.Properties, attachmentBase64 string) (feature.Feature, error) {
	req := createRequest{
		Geometry:         geojson.NewGeometry(g),
		Properties:       props,
		AttachmentBase64: attachmentBase64,
	}
	var resp recordResponse
	if err := c.do(ctx, http.MethodPost, "/features", req, &resp); err != nil {
		return feature.Feature{}, err
	}
	if !resp.Success {
		return feature.Feature{}, errNotOK
	}
	return resp.Data.toFeature()
}

// UpdateFeature sends a partial update. Nil geometry or properties are
// omitted from the payload.
func (c *Client) UpdateFeature(ctx context.Context, id string, g orb.Geometry, props geojson.Properties) (feature.Feature, error) {
	req := updateRequest{Properties: props}
	if g != nil {
		req.Geometry = geojson.NewGeometry(g)
	}
	var resp recordResponse
	if err := c.do(ctx, http.MethodPut, "/features/"+url.PathEscape(id), req, &resp); err != nil {
		return feature.Feature{}, err
	}
	if !resp.Success {
		return feature.Feature{}, errNotOK
	}
	return resp.Data.toFeature()
}

func (c *Client) DeleteFeature(ctx context.Context, id string) error {
	var resp ackResponse
	if err := c.do(ctx, http.MethodDelete, "/features/"+url.PathEscape(id), nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errNotOK
	}
	return nil
}

// SetStatus mutates the triage status of a record. The returned feature
// carries whatever canonical fields the server normalized.
func (c *Client) SetStatus(ctx context.Context, id, status string) (feature.Feature, error) {
	var resp recordResponse
	if err := c.do(ctx, http.MethodPut, "/records/"+url.PathEscape(id)+"/status", statusRequest{Status: status}, &resp); err != nil {
		return feature.Feature{}, err
	}
	if !resp.Success {
		return feature.Feature{}, errNotOK
	}
	return resp.Data.toFeature()
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Debug("request failed")
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %v", err)
	}
	return nil
}

// decodeRecords converts wire records to features, skipping records that
// cannot be decoded instead of failing the whole refresh.
func decodeRecords(records []Record) []feature.Feature {
	features := make([]feature.Feature, 0, len(records))
	for _, r := range records {
		f, err := r.toFeature()
		if err != nil {
			log.WithError(err).Trace("skipping invalid record")
			continue
		}
		features = append(features, f)
	}
	return features
}

// DecodeListPayload parses a raw refresh payload as fetched by the
// poller, returning the committed feature set.
func DecodeListPayload(raw []byte) ([]feature.Feature, error) {
	var resp listResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("error unmarshalling features payload: %v", err)
	}
	if !resp.Success {
		return nil, errNotOK
	}
	return decodeRecords(resp.Data), nil
}
