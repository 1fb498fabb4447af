package iot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/auth"
)

const (
	// iotSigningService is the SigV4 service name of the AWS IoT data plane.
	iotSigningService = "iotdevicegateway"

	// emptyPayloadHash is the SHA-256 of an empty body.
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	presignExpiry = 24 * time.Hour
)

// PresignURL returns the wss:// URL for the broker's /mqtt endpoint signed
// with creds. AWS IoT requires the session token to be appended after
// signing rather than included in the canonical query.
func PresignURL(ctx context.Context, endpoint, region string, creds auth.Credentials, now time.Time) (string, error) {
	u := &url.URL{
		Scheme:   "https",
		Host:     endpoint,
		Path:     "/mqtt",
		RawQuery: url.Values{"X-Amz-Expires": {fmt.Sprint(int(presignExpiry.Seconds()))}}.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("building presign request: %w", err)
	}

	awsCreds := aws.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretKey,
	}

	signed, _, err := v4.NewSigner().PresignHTTP(ctx, awsCreds, req, emptyPayloadHash, iotSigningService, region, now.UTC())
	if err != nil {
		return "", fmt.Errorf("presigning broker url: %w", err)
	}

	if creds.SessionToken != "" {
		signed += "&X-Amz-Security-Token=" + url.QueryEscape(creds.SessionToken)
	}
	return "wss://" + strings.TrimPrefix(signed, "https://"), nil
}
