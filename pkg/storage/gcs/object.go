package gcs

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/megaerp/catalog-image-sync/pkg/errors"
)

// Object downloads the named object from the default bucket and returns its
// raw bytes, or the standard base64 encoding of them when asBase64 is set.
// The catalog media upload endpoint only accepts base64 payloads, so the
// consumer always requests the encoded form.
func (c *Client) Object(ctx context.Context, key string, asBase64 bool) ([]byte, error) {
	if c == nil || c.tokenSource == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gcs client not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "object key is required")
	}

	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetching storage token")
	}

	u := fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		c.host(),
		url.PathEscape(c.defaultBucket),
		escapeObjectName(key),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building object request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetching object")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, pkgerrors.New(
			pkgerrors.CodeDependency,
			fmt.Sprintf("object fetch returned %s", resp.Status),
		).WithDetails(map[string]any{"body": strings.TrimSpace(string(b)), "object_key": key})
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading object body")
	}

	if !asBase64 {
		return raw, nil
	}

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(encoded, raw)
	return encoded, nil
}

func (c *Client) host() string {
	if c.apiHost != "" {
		return c.apiHost
	}
	return storageHost
}

// escapeObjectName escapes an object name for use as a single path segment in
// the JSON API; slashes inside the key must be encoded too.
func escapeObjectName(key string) string {
	return strings.ReplaceAll(url.PathEscape(key), "/", "%2F")
}
