package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/megaerp/catalog-image-sync/pkg/config"
	pkgerrors "github.com/megaerp/catalog-image-sync/pkg/errors"
	"github.com/megaerp/catalog-image-sync/pkg/logger"
)

const productCodeField = "mega_erp_code"

// Client is a stateless facade over the catalog's signed REST operations.
// One instance is constructed per process and injected into the consumer.
type Client struct {
	httpClient *http.Client
	endpoint   string
	signer     *oauthSigner
	logg       *logger.Logger
}

func NewClient(cfg config.CatalogConfig, logg *logger.Logger) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog endpoint is required")
	}
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" || cfg.Token == "" || cfg.TokenSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog oauth credentials are required")
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   endpoint,
		signer:     newOAuthSigner(cfg.ConsumerKey, cfg.ConsumerSecret, cfg.Token, cfg.TokenSecret),
		logg:       logg,
	}, nil
}

// GetProductByCode looks a product up by its external ERP code using the
// search-criteria filter protocol.
func (c *Client) GetProductByCode(ctx context.Context, code string) (*Product, error) {
	query := url.Values{}
	query.Set("searchCriteria[filterGroups][0][filters][0][field]", productCodeField)
	query.Set("searchCriteria[filterGroups][0][filters][0][value]", code)
	requestURL := c.endpoint + "/products?" + query.Encode()

	resp, err := c.do(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.remoteError(resp, "product lookup failed")
	}

	var product Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding product response")
	}
	return &product, nil
}

// RemoveImage deletes the media entry from the product's gallery. The
// catalog has no overwrite-by-position operation, so occupied slots are
// removed before re-upload.
func (c *Client) RemoveImage(ctx context.Context, sku string, entryID int64) error {
	requestURL := fmt.Sprintf(
		"%s/products/%s/media/%s",
		c.endpoint,
		url.PathEscape(sku),
		strconv.FormatInt(entryID, 10),
	)

	resp, err := c.do(ctx, http.MethodDelete, requestURL, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.remoteError(resp, "image removal failed")
	}
	return nil
}

type uploadEntry struct {
	File      string        `json:"file"`
	Types     []string      `json:"types"`
	Position  int           `json:"position"`
	Disabled  bool          `json:"disabled"`
	MediaType string        `json:"media_type"`
	Content   uploadContent `json:"content"`
}

type uploadContent struct {
	Type              string `json:"type"`
	Name              string `json:"name"`
	Base64EncodedData string `json:"base64_encoded_data"`
}

// UploadImage creates a media entry at the given position. Position 0 is the
// principal slot and carries the full display role set; other positions carry
// none.
func (c *Client) UploadImage(ctx context.Context, in UploadInput) error {
	requestURL := fmt.Sprintf("%s/products/%s/media", c.endpoint, url.PathEscape(in.SKU))

	fileName := MediaFileName(in.Name, in.Position)
	body := map[string]uploadEntry{
		"entry": {
			File:      mediaFilePath(fileName),
			Types:     RolesForPosition(in.Position),
			Position:  in.Position,
			Disabled:  false,
			MediaType: "image",
			Content: uploadContent{
				Type:              "image/jpeg",
				Name:              fileName,
				Base64EncodedData: in.Image,
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding upload payload")
	}

	resp, err := c.do(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return c.remoteError(resp, "image upload failed")
	}
	return nil
}

// RolesForPosition returns the display role tags for a gallery slot.
func RolesForPosition(position int) []string {
	if position == 0 {
		return []string{"image", "small_image", "thumbnail"}
	}
	return []string{}
}

func (c *Client) do(ctx context.Context, method, requestURL string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building catalog request")
	}

	authorization, err := c.signer.AuthorizationHeader(method, requestURL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "signing catalog request")
	}
	req.Header.Set("Authorization", authorization)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling catalog api")
	}
	return resp, nil
}

// remoteError captures the remote status plus any structured message the
// catalog returned so retry decisions keep their diagnostic context.
func (c *Client) remoteError(resp *http.Response, message string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	details := map[string]any{"status": resp.StatusCode}
	var remote struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &remote); err == nil && remote.Message != "" {
		details["message"] = remote.Message
	}

	return pkgerrors.New(
		pkgerrors.CodeDependency,
		fmt.Sprintf("%s: status %d", message, resp.StatusCode),
	).WithDetails(details)
}
