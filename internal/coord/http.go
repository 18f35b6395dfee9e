package coord

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/imroc/req/v3"

	"github.com/openflux/upwire/internal/version"
)

const (
	v1SessionCreate   = "/api/v1/uploads"
	v1SessionToken    = "/api/v1/uploads/token"
	v1SessionComplete = "/api/v1/uploads/complete"
	v1SessionCancel   = "/api/v1/uploads/cancel"

	HeaderRequestID     = "X-Request-Id"
	HeaderClientVersion = "X-Upwire-Version"
)

var userAgent = fmt.Sprintf("Upwire/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// HTTPCoordinator talks to an upload coordination server over its JSON API.
type HTTPCoordinator struct {
	client *req.Client
}

// NewHTTPCoordinator creates a coordinator client for the given server URL.
func NewHTTPCoordinator(baseURL string) *HTTPCoordinator {
	client := req.C().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetUserAgent(userAgent).
		SetCommonHeader(HeaderClientVersion, version.Version).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	return &HTTPCoordinator{client: client}
}

// SetAuthToken sets a bearer token for all coordination calls. Part transfers
// themselves carry no auth; the presigned URLs are self-authorizing.
func (c *HTTPCoordinator) SetAuthToken(token string) *HTTPCoordinator {
	c.client.SetCommonBearerAuthToken(token)
	return c
}

func (c *HTTPCoordinator) request(ctx context.Context) *req.Request {
	return c.client.R().
		SetContext(ctx).
		SetHeader(HeaderRequestID, uuid.NewString()).
		SetErrorResult(&APIError{})
}

func (c *HTTPCoordinator) CreateSession(ctx context.Context, params *CreateSessionParams) (*Session, error) {
	var session *Session
	resp, err := c.request(ctx).
		SetBody(params).
		SetSuccessResult(&session).
		Post(v1SessionCreate)

	if err := handleAPIError(resp, err, "create session"); err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("create session: empty response")
	}
	return session, nil
}

func (c *HTTPCoordinator) PartToken(ctx context.Context, params *PartTokenParams) (string, error) {
	var auth *PartAuthorization
	resp, err := c.request(ctx).
		SetBody(params).
		SetSuccessResult(&auth).
		Post(v1SessionToken)

	if err := handleAPIError(resp, err, "part token"); err != nil {
		return "", err
	}
	if auth == nil || auth.URL == "" {
		return "", fmt.Errorf("part token: empty response for part %d", params.PartNumber)
	}
	return auth.URL, nil
}

func (c *HTTPCoordinator) Finalize(ctx context.Context, params *FinalizeParams) (*FinalizeResult, error) {
	var result *FinalizeResult
	resp, err := c.request(ctx).
		SetBody(params).
		SetSuccessResult(&result).
		Post(v1SessionComplete)

	if err := handleAPIError(resp, err, "finalize"); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("finalize: empty response")
	}
	return result, nil
}

func (c *HTTPCoordinator) Cancel(ctx context.Context, params *CancelParams) error {
	resp, err := c.request(ctx).
		SetBody(params).
		Post(v1SessionCancel)

	return handleAPIError(resp, err, "cancel")
}

var _ Coordinator = (*HTTPCoordinator)(nil)
