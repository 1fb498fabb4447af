package auth

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
)

// ListDevices fetches every device owned by the account and builds a new
// directory from the listing.
func (c *Client) ListDevices(ctx context.Context, tokens Tokens) (*thing.Directory, error) {
	if !tokens.Valid(c.now()) {
		return nil, fmt.Errorf("%w: %w", ErrAuth, ErrTokenExpired)
	}

	url := strings.TrimSuffix(c.cloud.IoTAPIURL, "/") + pathGetAllDevice
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrAuth, err)
	}
	req.Header.Set("Authorization", "Bearer "+tokens.IDToken)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var resp getAllDeviceResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("%w: device listing has no results", ErrAuth)
	}

	dir := thing.NewDirectory(resp.Results.Things)
	c.logger.Info("device listing received", "devices", dir.Len())
	return dir, nil
}
