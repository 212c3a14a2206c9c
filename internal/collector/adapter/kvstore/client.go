package kvstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
	apperrors "kvstore-collector/internal/shared/errors"
	"kvstore-collector/internal/shared/logger"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJSON = "application/json"

	// DefaultOwner is the owner used when none is configured.
	DefaultOwner = "nobody"
)

// callClass groups operations that share a timeout.
type callClass int

const (
	classConfig callClass = iota // collection, field and lookup configuration, listing
	classData                    // single record writes
	classBulk                    // delete all, delete by query
)

// Options configures a Client.
type Options struct {
	Host       string
	Owner      string
	Credential Credential

	// InsecureSkipVerify disables TLS certificate validation. The store is
	// usually the local management port with a self-signed certificate.
	InsecureSkipVerify bool

	ConfigTimeout time.Duration
	DataTimeout   time.Duration
	BulkTimeout   time.Duration

	// HTTPClient overrides the transport built from the options above.
	HTTPClient *http.Client
}

// Client talks to the key-value store REST API.
type Client struct {
	host       string
	owner      string
	credential Credential
	http       *http.Client
	timeouts   map[callClass]time.Duration
	logger     logger.Logger
}

var _ repository.KVStore = (*Client)(nil)

// NewClient validates opts and builds a client.
func NewClient(opts Options, log logger.Logger) (*Client, error) {
	if opts.Host == "" {
		return nil, apperrors.NewConfigurationError("kvstore host must be set")
	}
	if opts.Credential == nil {
		return nil, apperrors.NewConfigurationError("kvstore credential must be set")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	owner := opts.Owner
	if owner == "" {
		owner = DefaultOwner
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify} //nolint:gosec // explicit configuration switch
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{
		host:       strings.TrimRight(opts.Host, "/"),
		owner:      owner,
		credential: opts.Credential,
		http:       httpClient,
		timeouts: map[callClass]time.Duration{
			classConfig: orDefault(opts.ConfigTimeout, 30*time.Second),
			classData:   orDefault(opts.DataTimeout, 10*time.Second),
			classBulk:   orDefault(opts.BulkTimeout, 120*time.Second),
		},
		logger: log.WithComponent("kvstore-client"),
	}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// CreateCollection creates collection in app, replicated to search peers.
func (c *Client) CreateCollection(ctx context.Context, collection, app string) error {
	if collection == "" || app == "" {
		return apperrors.NewValidationError("collection and app are required")
	}
	form := url.Values{"name": {collection}, "replicate": {"true"}}
	_, err := c.doForm(ctx, classConfig, http.MethodPost, c.configEndpoint(app, c.owner, ""), form)
	return err
}

// ConfigureField adds or overwrites one field definition.
func (c *Client) ConfigureField(ctx context.Context, collection, app string, field model.FieldDefinition) error {
	if collection == "" || app == "" || field.Name == "" {
		return apperrors.NewValidationError("collection, app and field name are required")
	}
	form := url.Values{field.ConfigKey(): {string(field.Type)}}
	_, err := c.doForm(ctx, classConfig, http.MethodPost, c.configEndpoint(app, c.owner, collection), form)
	return err
}

// ConfigureLookup registers a lookup named after and backed by the collection.
// An existing lookup has its field list updated instead.
func (c *Client) ConfigureLookup(ctx context.Context, name, app string, fields []string) error {
	if name == "" || app == "" {
		return apperrors.NewValidationError("lookup name and app are required")
	}
	if len(fields) == 0 {
		return apperrors.NewConfigurationError("lookup " + name + " has no fields").WithCause(apperrors.ErrNoLookupFields)
	}
	fieldsList := quoteFields(fields)

	create := url.Values{
		"name":          {name},
		"collection":    {name},
		"external_type": {"kvstore"},
		"fields_list":   {fieldsList},
	}
	_, err := c.doForm(ctx, classConfig, http.MethodPost, c.lookupEndpoint(app, c.owner, ""), create)
	if !apperrors.IsAlreadyExists(err) {
		return err
	}

	c.logger.WithFields(map[string]interface{}{"lookup_name": name}).Debug("lookup exists, updating field list")
	update := url.Values{
		"collection":    {name},
		"external_type": {"kvstore"},
		"fields_list":   {fieldsList},
	}
	_, err = c.doForm(ctx, classConfig, http.MethodPost, c.lookupEndpoint(app, c.owner, name), update)
	return err
}

func quoteFields(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + f + `"`
	}
	return strings.Join(quoted, ",")
}

// InsertRecord posts a new record and returns its key.
func (c *Client) InsertRecord(ctx context.Context, collection, app, owner string, record *model.Record) (string, error) {
	if collection == "" || app == "" || record == nil {
		return "", apperrors.NewValidationError("collection, app and record are required")
	}
	content, err := c.doJSON(ctx, classData, http.MethodPost, c.dataEndpoint(app, c.ownerOr(owner), collection, ""), record)
	if err != nil {
		return "", err
	}
	return decodeKey(content)
}

// UpdateRecord replaces the record stored under key and returns the key.
func (c *Client) UpdateRecord(ctx context.Context, collection, app, owner, key string, record *model.Record) (string, error) {
	if collection == "" || app == "" || key == "" || record == nil {
		return "", apperrors.NewValidationError("collection, app, key and record are required")
	}
	content, err := c.doJSON(ctx, classData, http.MethodPost, c.dataEndpoint(app, c.ownerOr(owner), collection, key), record)
	if err != nil {
		return "", err
	}
	return decodeKey(content)
}

// GetRecord fetches the record stored under key.
func (c *Client) GetRecord(ctx context.Context, collection, app, key string) (*model.Record, error) {
	if collection == "" || app == "" || key == "" {
		return nil, apperrors.NewValidationError("collection, app and key are required")
	}
	uri := c.dataEndpoint(app, c.owner, collection, key)
	content, err := c.do(ctx, classData, http.MethodGet, uri, nil, contentTypeJSON)
	if err != nil {
		return nil, err
	}
	record := model.NewRecord()
	if err := json.Unmarshal(content, record); err != nil {
		return nil, apperrors.NewInternalError("unexpected store response").WithCause(err)
	}
	return record, nil
}

// DeleteRecord removes the record stored under key. An absent key is NotExists.
func (c *Client) DeleteRecord(ctx context.Context, collection, app, key string) error {
	if collection == "" || app == "" || key == "" {
		return apperrors.NewValidationError("collection, app and key are required")
	}
	_, err := c.do(ctx, classData, http.MethodDelete, c.dataEndpoint(app, c.owner, collection, key), nil, contentTypeJSON)
	return err
}

// DeleteAll removes every record in the collection.
func (c *Client) DeleteAll(ctx context.Context, collection, app string) error {
	if collection == "" {
		return apperrors.NewValidationError("collection is required")
	}
	_, err := c.do(ctx, classBulk, http.MethodDelete, c.dataEndpoint(app, c.owner, collection, ""), nil, contentTypeJSON)
	return err
}

// DeleteByQuery removes the records matching query.
func (c *Client) DeleteByQuery(ctx context.Context, collection, app string, query model.Query) error {
	if collection == "" || app == "" {
		return apperrors.NewValidationError("collection and app are required")
	}
	if len(query) == 0 {
		return apperrors.NewConfigurationError("refusing to delete by empty query").WithCause(apperrors.ErrEmptyQuery)
	}
	q, err := query.Encode()
	if err != nil {
		return apperrors.NewValidationError("query is not encodable").WithCause(err)
	}
	uri := c.dataEndpoint(app, c.owner, collection, "") + "?" + url.Values{"query": {q}}.Encode()
	_, err = c.do(ctx, classBulk, http.MethodDelete, uri, nil, contentTypeForm)
	return err
}

// ListCollections returns the collection names visible in app.
func (c *Client) ListCollections(ctx context.Context, app string) ([]string, error) {
	content, err := c.do(ctx, classConfig, http.MethodGet, c.configEndpoint(app, c.owner, ""), nil, contentTypeForm)
	if err != nil {
		return nil, err
	}
	return parseCollectionFeed(content)
}

func (c *Client) ownerOr(owner string) string {
	if owner == "" {
		return c.owner
	}
	return owner
}

func decodeKey(content []byte) (string, error) {
	var resp struct {
		Key string `json:"_key"`
	}
	if err := json.Unmarshal(content, &resp); err != nil {
		return "", apperrors.NewInternalError("unexpected store response").WithCause(err)
	}
	return resp.Key, nil
}

func (c *Client) doForm(ctx context.Context, class callClass, method, uri string, form url.Values) ([]byte, error) {
	return c.do(ctx, class, method, uri, strings.NewReader(form.Encode()), contentTypeForm)
}

func (c *Client) doJSON(ctx context.Context, class callClass, method, uri string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewValidationError("payload is not encodable").WithCause(err)
	}
	return c.do(ctx, class, method, uri, bytes.NewReader(body), contentTypeJSON)
}

// do performs one request and maps the answer onto the error taxonomy:
// 200/201 return the body, 409 AlreadyExists, 404 NotExists, anything else
// RequestFailed. No response at all is a Transport error, except when the
// per-call timeout fired, which is a RequestFailed with reason "timeout".
func (c *Client) do(ctx context.Context, class callClass, method, uri string, body io.Reader, contentType string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeouts[class])
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, uri, body)
	if err != nil {
		return nil, apperrors.NewRequestFailedError(method, uri, err.Error(), 0).WithCause(err)
	}
	auth, err := c.credential.Authorization(callCtx)
	if err != nil {
		return nil, apperrors.NewRequestFailedError(method, uri, "credential unavailable", 0).WithCause(err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", auth)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, apperrors.NewRequestFailedError(method, uri, "timeout", 0).WithCause(err)
		}
		return nil, apperrors.NewTransportError(method, uri, err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTransportError(method, uri, fmt.Errorf("reading response body: %w", err))
	}

	c.logger.WithFields(map[string]interface{}{
		"method":      method,
		"uri":         uri,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("kvstore request")

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return content, nil
	case http.StatusConflict:
		return nil, apperrors.NewAlreadyExistsError(method, uri)
	case http.StatusNotFound:
		return nil, apperrors.NewNotExistsError(method, uri)
	default:
		return nil, apperrors.NewRequestFailedError(method, uri, reason(resp), resp.StatusCode)
	}
}

func reason(resp *http.Response) string {
	r := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if r == "" {
		r = http.StatusText(resp.StatusCode)
	}
	return r
}
