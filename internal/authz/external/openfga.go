package external

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	openfga "github.com/openfga/go-sdk"
	fga "github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"
)

const defaultSubjectType = "user"

// OpenFGABackend checks relationships against an OpenFGA store.
type OpenFGABackend struct {
	client      *fga.OpenFgaClient
	httpClient  *http.Client
	apiURL      string
	subjectType string
}

// NewOpenFGABackend creates an OpenFGA backend. The SDK's own retries are disabled.
func NewOpenFGABackend(cfg *OpenFGAConfig, httpClient *http.Client) (*OpenFGABackend, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	conf := &fga.ClientConfiguration{
		ApiUrl:     strings.TrimSuffix(cfg.APIURL, "/"),
		StoreId:    cfg.StoreID,
		HTTPClient: httpClient,
		RetryParams: &openfga.RetryParams{
			MaxRetry:    0,
			MinWaitInMs: 10,
		},
	}
	if cfg.AuthorizationModelID != "" {
		conf.AuthorizationModelId = cfg.AuthorizationModelID
	}
	if cfg.APIToken != "" {
		conf.Credentials = &credentials.Credentials{
			Method: credentials.CredentialsMethodApiToken,
			Config: &credentials.Config{
				ApiToken: cfg.APIToken,
			},
		}
	}

	client, err := fga.NewSdkClient(conf)
	if err != nil {
		return nil, fmt.Errorf("openfga client init: %w", err)
	}

	subjectType := cfg.SubjectType
	if subjectType == "" {
		subjectType = defaultSubjectType
	}

	return &OpenFGABackend{
		client:      client,
		httpClient:  httpClient,
		apiURL:      conf.ApiUrl,
		subjectType: subjectType,
	}, nil
}

// Name returns "openfga".
func (b *OpenFGABackend) Name() string {
	return TypeOpenFGA
}

// Check runs an OpenFGA Check.
func (b *OpenFGABackend) Check(ctx context.Context, req CheckRequest) (bool, error) {
	body := fga.ClientCheckRequest{
		User:     b.user(req.Subject),
		Relation: req.Relation,
		Object:   req.Object,
	}

	resp, err := b.client.Check(ctx).Body(body).Execute()
	if err != nil {
		return false, fmt.Errorf("openfga check: %w", err)
	}

	return resp.Allowed != nil && *resp.Allowed, nil
}

// Write applies writes and deletes as a single OpenFGA write transaction.
func (b *OpenFGABackend) Write(ctx context.Context, writes, deletes []Relationship) error {
	body := fga.ClientWriteRequest{}
	for _, r := range writes {
		body.Writes = append(body.Writes, fga.ClientTupleKey{
			User:     b.user(r.Subject),
			Relation: r.Relation,
			Object:   r.Object,
		})
	}
	for _, r := range deletes {
		body.Deletes = append(body.Deletes, fga.ClientTupleKeyWithoutCondition{
			User:     b.user(r.Subject),
			Relation: r.Relation,
			Object:   r.Object,
		})
	}

	if _, err := b.client.Write(ctx).Body(body).Execute(); err != nil {
		return fmt.Errorf("openfga write: %w", err)
	}
	return nil
}

// ListObjects runs an OpenFGA ListObjects query.
func (b *OpenFGABackend) ListObjects(ctx context.Context, req ListObjectsRequest) ([]string, error) {
	body := fga.ClientListObjectsRequest{
		User:     b.user(req.Subject),
		Relation: req.Relation,
		Type:     req.Type,
	}

	resp, err := b.client.ListObjects(ctx).Body(body).Execute()
	if err != nil {
		return nil, fmt.Errorf("openfga list objects: %w", err)
	}
	return resp.GetObjects(), nil
}

// user qualifies a bare subject with the configured type.
func (b *OpenFGABackend) user(subject string) string {
	if strings.Contains(subject, ":") {
		return subject
	}
	return b.subjectType + ":" + subject
}

// Health calls the server's /healthz endpoint.
func (b *OpenFGABackend) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.apiURL+"/healthz", http.NoBody)
	if err != nil {
		return fmt.Errorf("openfga health request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openfga health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyBytes))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// Close is a no-op.
func (b *OpenFGABackend) Close() error {
	return nil
}
