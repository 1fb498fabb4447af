package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	idptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/config"
)

const (
	// userAgent matches the vendor mobile app; the IoT API rejects unknown agents.
	userAgent = "Dalvik/2.1.0"

	pathGetAllDevice = "/GetAllDevice"

	maxErrorBodyLength    = 256
	defaultRequestTimeout = 15 * time.Second
)

// Logger is the logging interface used by the client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ClientOptions configures a Client.
type ClientOptions struct {
	Cloud   config.CloudConfig
	Account config.AccountConfig

	// HTTPClient overrides the client built from Cloud (CA file, timeout).
	HTTPClient *http.Client

	// Logger receives request diagnostics. Secrets are never logged.
	Logger Logger
}

// Client runs the credential pipeline against the cloud.
//
// It remembers the refresh token from the last successful login so a
// refresh-mode Login can reuse it. All methods are safe for concurrent use.
type Client struct {
	cloud    config.CloudConfig
	email    string
	password string
	http     *http.Client
	idp      *cognitoidentityprovider.Client
	identity *cognitoidentity.Client
	logger   Logger
	now      func() time.Time

	mu     sync.Mutex
	tokens Tokens
}

// NewClient creates a credential pipeline client.
func NewClient(opts ClientOptions) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		var err error
		httpClient, err = newHTTPClient(opts.Cloud)
		if err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Client{
		cloud:    opts.Cloud,
		email:    opts.Account.Email,
		password: opts.Account.Password,
		http:     httpClient,
		idp:      newIdentityProviderClient(opts.Cloud, httpClient),
		identity: newIdentityClient(opts.Cloud, httpClient),
		logger:   logger,
		now:      time.Now,
	}, nil
}

// sdkAPIOptions replaces the SDK user agent with the vendor app's. The
// header setter runs after the SDK user agent middleware in the build step.
func sdkAPIOptions() []func(*middleware.Stack) error {
	return []func(*middleware.Stack) error{
		smithyhttp.SetHeaderValue("User-Agent", userAgent),
	}
}

// newIdentityProviderClient builds the user pool client. Its calls are
// unsigned and never retried; the session controller owns retries.
func newIdentityProviderClient(cloud config.CloudConfig, httpClient *http.Client) *cognitoidentityprovider.Client {
	return cognitoidentityprovider.New(cognitoidentityprovider.Options{
		Region:       cloud.Region,
		BaseEndpoint: aws.String(cloud.IdentityProviderURL),
		HTTPClient:   httpClient,
		Credentials:  aws.AnonymousCredentials{},
		Retryer:      aws.NopRetryer{},
		APIOptions:   sdkAPIOptions(),
	})
}

// newIdentityClient builds the identity pool client, configured like the
// user pool client.
func newIdentityClient(cloud config.CloudConfig, httpClient *http.Client) *cognitoidentity.Client {
	return cognitoidentity.New(cognitoidentity.Options{
		Region:       cloud.Region,
		BaseEndpoint: aws.String(cloud.IdentityURL),
		HTTPClient:   httpClient,
		Credentials:  aws.AnonymousCredentials{},
		Retryer:      aws.NopRetryer{},
		APIOptions:   sdkAPIOptions(),
	})
}

// newHTTPClient builds the HTTPS client, pinning the CA bundle when one is
// configured.
func newHTTPClient(cloud config.CloudConfig) (*http.Client, error) {
	timeout := time.Duration(cloud.HTTPTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	tlsCfg, err := TLSConfig(cloud)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg

	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

// TLSConfig is the client TLS setup shared by the HTTPS endpoints and the
// broker websocket: TLS 1.2 or later, trusting CAFile when one is set.
func TLSConfig(cloud config.CloudConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cloud.CAFile == "" {
		return tlsCfg, nil
	}
	pem, err := os.ReadFile(cloud.CAFile)
	if err != nil {
		return nil, fmt.Errorf("reading CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("CA file %s contains no certificates", cloud.CAFile)
	}
	tlsCfg.RootCAs = pool
	return tlsCfg, nil
}

// HasAccount reports whether both email and password are configured.
func (c *Client) HasAccount() bool {
	return c.email != "" && c.password != ""
}

// HasRefreshToken reports whether a refresh token from an earlier login is held.
func (c *Client) HasRefreshToken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens.RefreshToken != ""
}

// Forget drops the held tokens so the next Login uses the password.
func (c *Client) Forget() {
	c.mu.Lock()
	c.tokens = Tokens{}
	c.mu.Unlock()
}

// Login authenticates against the user pool.
//
// With useRefreshToken set and a refresh token held, the refresh flow is
// used and the held refresh token is kept (Cognito does not rotate it).
// Otherwise the configured email and password are used.
func (c *Client) Login(ctx context.Context, useRefreshToken bool) (Tokens, error) {
	c.mu.Lock()
	held := c.tokens.RefreshToken
	c.mu.Unlock()

	refresh := useRefreshToken && held != ""

	in := &cognitoidentityprovider.InitiateAuthInput{ClientId: aws.String(c.cloud.ClientID)}
	if refresh {
		in.AuthFlow = idptypes.AuthFlowTypeRefreshTokenAuth
		in.AuthParameters = map[string]string{"REFRESH_TOKEN": held}
	} else {
		if !c.HasAccount() {
			return Tokens{}, ErrMissingAccount
		}
		in.AuthFlow = idptypes.AuthFlowTypeUserPasswordAuth
		in.AuthParameters = map[string]string{
			"USERNAME": c.email,
			"PASSWORD": c.password,
		}
	}

	out, err := c.idp.InitiateAuth(ctx, in)
	if err != nil {
		return Tokens{}, fmt.Errorf("login (%s): %w", in.AuthFlow, c.sdkError("InitiateAuth", err))
	}

	result := out.AuthenticationResult
	if result == nil || aws.ToString(result.AccessToken) == "" || aws.ToString(result.IdToken) == "" {
		return Tokens{}, fmt.Errorf("%w: login response missing tokens", ErrAuth)
	}

	idToken := aws.ToString(result.IdToken)
	tokens := Tokens{
		AccessToken:  aws.ToString(result.AccessToken),
		IDToken:      idToken,
		RefreshToken: aws.ToString(result.RefreshToken),
		Expiry:       c.tokenExpiry(int(result.ExpiresIn), idToken),
	}
	if refresh {
		tokens.RefreshToken = held
	}
	if tokens.RefreshToken == "" {
		return Tokens{}, fmt.Errorf("%w: login response missing refresh token", ErrAuth)
	}

	c.mu.Lock()
	c.tokens = tokens
	c.mu.Unlock()

	c.logger.Debug("cloud login succeeded", "flow", in.AuthFlow, "expires", tokens.Expiry)
	return tokens, nil
}

// tokenExpiry prefers the ExpiresIn seconds from the response and falls
// back to the exp claim of the ID token. The token is not verified; it came
// straight from the issuer over TLS and is only inspected for its lifetime.
func (c *Client) tokenExpiry(expiresIn int, idToken string) time.Time {
	if expiresIn > 0 {
		return c.now().Add(time.Duration(expiresIn) * time.Second)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// FetchIdentity describes the logged-in user.
func (c *Client) FetchIdentity(ctx context.Context, tokens Tokens) (Identity, error) {
	if !tokens.Valid(c.now()) {
		return Identity{}, fmt.Errorf("%w: %w", ErrAuth, ErrTokenExpired)
	}

	out, err := c.idp.GetUser(ctx, &cognitoidentityprovider.GetUserInput{
		AccessToken: aws.String(tokens.AccessToken),
	})
	if err != nil {
		return Identity{}, fmt.Errorf("get user: %w", c.sdkError("GetUser", err))
	}

	attrs := make(map[string]string, len(out.UserAttributes))
	for _, a := range out.UserAttributes {
		attrs[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}

	id := Identity{
		IdentityID:     attrs[AttrIdentityID],
		HostIdentityID: attrs[AttrHostIdentityID],
		Username:       aws.ToString(out.Username),
		Attributes:     attrs,
	}
	if id.IdentityID == "" {
		return Identity{}, fmt.Errorf("%w: user has no %s attribute", ErrAuth, AttrIdentityID)
	}
	return id, nil
}

// FetchCredentials exchanges the ID token for temporary signed credentials
// scoped to the identity.
func (c *Client) FetchCredentials(ctx context.Context, tokens Tokens, identity Identity) (Credentials, error) {
	if !tokens.Valid(c.now()) {
		return Credentials{}, fmt.Errorf("%w: %w", ErrAuth, ErrTokenExpired)
	}

	out, err := c.identity.GetCredentialsForIdentity(ctx, &cognitoidentity.GetCredentialsForIdentityInput{
		IdentityId: aws.String(identity.IdentityID),
		Logins:     map[string]string{c.loginProvider(): tokens.IDToken},
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("get credentials: %w", c.sdkError("GetCredentialsForIdentity", err))
	}

	cr := out.Credentials
	if cr == nil || aws.ToString(cr.AccessKeyId) == "" || aws.ToString(cr.SecretKey) == "" {
		return Credentials{}, fmt.Errorf("%w: credentials response incomplete", ErrAuth)
	}

	return Credentials{
		AccessKeyID:  aws.ToString(cr.AccessKeyId),
		SecretKey:    aws.ToString(cr.SecretKey),
		SessionToken: aws.ToString(cr.SessionToken),
		Expiration:   aws.ToTime(cr.Expiration),
	}, nil
}

// loginProvider is the Logins map key naming the user pool.
func (c *Client) loginProvider() string {
	host := strings.TrimPrefix(c.cloud.IdentityProviderURL, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	return host + "/" + c.cloud.UserPoolID
}

// sdkError maps a Cognito SDK failure onto ErrAuth. Service errors keep
// only their code and message; transport errors are wrapped whole.
func (c *Client) sdkError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		c.logger.Warn("cognito request rejected", "operation", op, "code", apiErr.ErrorCode())
		return fmt.Errorf("%w: %w", ErrAuth, apiErr)
	}
	return fmt.Errorf("%w: %w", ErrAuth, err)
}

// do executes req and decodes a 200 JSON body into out.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrAuth, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrAuth, describeFailure(resp.StatusCode, data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: malformed response: %w", ErrAuth, err)
	}
	return nil
}

// describeFailure renders a non-200 response, truncating long bodies.
func describeFailure(status int, body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyLength {
		s = s[:maxErrorBodyLength] + "..."
	}
	if s == "" {
		return fmt.Sprintf("status %d", status)
	}
	return fmt.Sprintf("status %d: %s", status, s)
}
