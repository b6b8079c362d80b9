package apic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/plantarium-platform/apisync-go/pkg/models"
	"go.uber.org/zap"
)

// ErrUnauthorized is returned when the platform rejects the bearer token.
var ErrUnauthorized = models.NewRemoteOperationError("unauthorized", nil)

// PlatformClientInterface defines the REST calls made against the API-management platform.
type PlatformClientInterface interface {
	Login(ctx context.Context) (string, error)
	GetDraftAPI(ctx context.Context, token, id, version string) ([]byte, bool, error)
	CreateDraftAPI(ctx context.Context, token string, doc []byte) error
	UpdateDraftAPI(ctx context.Context, token, id, version string, doc []byte) error
	ValidateDraftAPI(ctx context.Context, token string, doc []byte) error
	GetDraftProduct(ctx context.Context, token, name, version string) ([]byte, bool, error)
	CreateDraftProduct(ctx context.Context, token string, doc []byte) error
	UpdateDraftProduct(ctx context.Context, token, name, version string, doc []byte) error
	PublishProduct(ctx context.Context, token string, doc []byte) error
}

// PlatformClient is the resty based implementation of PlatformClientInterface.
type PlatformClient struct {
	client *resty.Client
	config PlatformConfig
	logger *zap.Logger
}

// NewPlatformClient initializes the REST client for the configured server.
func NewPlatformClient(config PlatformConfig, logger *zap.Logger) *PlatformClient {
	client := resty.New()
	client.SetBaseURL(config.Server)
	client.SetHeader("Content-Type", "application/json")
	client.SetDisableWarn(true)

	return &PlatformClient{
		client: client,
		config: config,
		logger: logger,
	}
}

func (c *PlatformClient) draftAPIs() string {
	return fmt.Sprintf("/orgs/%s/drafts/draft-apis", c.config.Org)
}

func (c *PlatformClient) draftProducts() string {
	return fmt.Sprintf("/orgs/%s/drafts/draft-products", c.config.Org)
}

func (c *PlatformClient) request(ctx context.Context, token string) *resty.Request {
	return c.client.R().SetContext(ctx).SetAuthToken(token)
}

// checkStatus maps an unexpected response onto the error taxonomy.
func checkStatus(resp *resty.Response, operation string, expected ...int) error {
	for _, code := range expected {
		if resp.StatusCode() == code {
			return nil
		}
	}
	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, operation)
	case http.StatusNotFound:
		return models.NewNotFoundError(fmt.Sprintf("%s: not found", operation), nil)
	}
	return models.NewRemoteOperationError(
		fmt.Sprintf("%s failed, status code: %d, response: %s", operation, resp.StatusCode(), resp.String()), nil)
}

// Login exchanges the configured credentials for a bearer token.
func (c *PlatformClient) Login(ctx context.Context) (string, error) {
	body := map[string]string{
		"username":      c.config.Username,
		"password":      c.config.Password,
		"realm":         c.config.Realm,
		"client_id":     c.config.ClientID,
		"client_secret": c.config.ClientSecret,
		"grant_type":    "password",
	}
	resp, err := c.client.R().SetContext(ctx).SetHeader("Accept", "application/json").SetBody(body).Post("/token")
	if err != nil {
		return "", fmt.Errorf("failed to log in: %w", err)
	}
	if err := checkStatus(resp, "login", http.StatusOK, http.StatusCreated); err != nil {
		return "", err
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body(), &token); err != nil {
		return "", fmt.Errorf("failed to parse login response: %w", err)
	}
	if token.AccessToken == "" {
		return "", models.NewRemoteOperationError("login response carried no access token", nil)
	}
	c.logger.Info("Logged in to platform", zap.String("server", c.config.Server), zap.String("org", c.config.Org))
	return token.AccessToken, nil
}

func (c *PlatformClient) getDocument(ctx context.Context, token, path, operation string) ([]byte, bool, error) {
	resp, err := c.request(ctx, token).SetHeader("Accept", "application/yaml").Get(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to %s: %w", operation, err)
	}
	c.logger.Debug("Platform response", zap.String("operation", operation), zap.Int("status", resp.StatusCode()))
	if resp.StatusCode() == http.StatusNotFound {
		return nil, false, nil
	}
	if err := checkStatus(resp, operation, http.StatusOK); err != nil {
		return nil, false, err
	}
	return resp.Body(), true, nil
}

func (c *PlatformClient) submit(ctx context.Context, token, method, path, operation string, body interface{}, expected ...int) error {
	resp, err := c.request(ctx, token).SetBody(body).Execute(method, path)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", operation, err)
	}
	c.logger.Debug("Platform response", zap.String("operation", operation), zap.Int("status", resp.StatusCode()))
	return checkStatus(resp, operation, expected...)
}

// GetDraftAPI fetches a draft API definition. A missing API is not an error.
func (c *PlatformClient) GetDraftAPI(ctx context.Context, token, id, version string) ([]byte, bool, error) {
	return c.getDocument(ctx, token, fmt.Sprintf("%s/%s/%s", c.draftAPIs(), id, version), "get draft api "+id)
}

// CreateDraftAPI creates a new draft API definition.
func (c *PlatformClient) CreateDraftAPI(ctx context.Context, token string, doc []byte) error {
	return c.submit(ctx, token, http.MethodPost, c.draftAPIs(), "create draft api",
		map[string]string{"draft_api": string(doc)}, http.StatusCreated, http.StatusOK)
}

// UpdateDraftAPI replaces an existing draft API definition.
func (c *PlatformClient) UpdateDraftAPI(ctx context.Context, token, id, version string, doc []byte) error {
	return c.submit(ctx, token, http.MethodPatch, fmt.Sprintf("%s/%s/%s", c.draftAPIs(), id, version), "update draft api "+id,
		map[string]string{"draft_api": string(doc)}, http.StatusOK)
}

// ValidateDraftAPI asks the platform to validate a definition without storing it.
func (c *PlatformClient) ValidateDraftAPI(ctx context.Context, token string, doc []byte) error {
	resp, err := c.request(ctx, token).SetBody(map[string]string{"draft_api": string(doc)}).Post(c.draftAPIs() + "/validate")
	if err != nil {
		return fmt.Errorf("failed to validate draft api: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return models.NewValidationError(fmt.Sprintf("platform rejected api definition: %s", resp.String()), nil)
	}
	return checkStatus(resp, "validate draft api", http.StatusOK)
}

// GetDraftProduct fetches a draft product. A missing product is not an error.
func (c *PlatformClient) GetDraftProduct(ctx context.Context, token, name, version string) ([]byte, bool, error) {
	return c.getDocument(ctx, token, fmt.Sprintf("%s/%s/%s", c.draftProducts(), name, version), "get draft product "+name)
}

// CreateDraftProduct creates a draft product.
func (c *PlatformClient) CreateDraftProduct(ctx context.Context, token string, doc []byte) error {
	return c.submit(ctx, token, http.MethodPost, c.draftProducts(), "create draft product",
		map[string]string{"draft_product": string(doc)}, http.StatusCreated, http.StatusOK)
}

// UpdateDraftProduct replaces an existing draft product.
func (c *PlatformClient) UpdateDraftProduct(ctx context.Context, token, name, version string, doc []byte) error {
	return c.submit(ctx, token, http.MethodPatch, fmt.Sprintf("%s/%s/%s", c.draftProducts(), name, version), "update draft product "+name,
		map[string]string{"draft_product": string(doc)}, http.StatusOK)
}

// PublishProduct publishes a product document to the configured catalog.
func (c *PlatformClient) PublishProduct(ctx context.Context, token string, doc []byte) error {
	path := fmt.Sprintf("/catalogs/%s/%s/publish-draft-product", c.config.Org, c.config.Catalog)
	return c.submit(ctx, token, http.MethodPost, path, "publish product to "+c.config.Catalog,
		map[string]string{"product": string(doc)}, http.StatusCreated, http.StatusOK)
}
