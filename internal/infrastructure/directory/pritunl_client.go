package directory

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

const maxErrorBody = 300

type PritunlConfig struct {
	BaseURL   string
	Token     string
	Secret    string
	VerifyTLS bool
	Timeout   time.Duration
}

// PritunlClient talks to the Pritunl enterprise API with HMAC-signed requests.
type PritunlClient struct {
	baseURL string
	token   string
	secret  string
	http    *http.Client
	now     func() time.Time
	nonce   func() string
}

func NewPritunlClient(cfg PritunlConfig) *PritunlClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // per-target opt-out for self-signed appliances
	}

	return &PritunlClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		secret:  cfg.Secret,
		http:    &http.Client{Timeout: timeout, Transport: transport},
		now:     time.Now,
		nonce:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// HTTPError is a non-2xx response from the directory.
type HTTPError struct {
	Status int
	Path   string
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.Status, e.Path, e.Body)
}

// Sign returns the auth headers for one request:
// base64(HMAC-SHA256(secret, token&timestamp&nonce&METHOD&path)).
func Sign(token, secret, timestamp, nonce, method, path string) http.Header {
	message := strings.Join([]string{token, timestamp, nonce, strings.ToUpper(method), path}, "&")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))

	h := http.Header{}
	h.Set("Auth-Token", token)
	h.Set("Auth-Timestamp", timestamp)
	h.Set("Auth-Nonce", nonce)
	h.Set("Auth-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return h
}

// do sends a signed request. JSON responses are decoded into out; other bodies are discarded.
func (c *PritunlClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	for k, v := range Sign(c.token, c.secret, strconv.FormatInt(c.now().Unix(), 10), c.nonce(), method, path) {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{Status: resp.StatusCode, Path: path, Body: string(snippet)}
	}
	mediaType := strings.ToLower(resp.Header.Get("Content-Type"))
	if out == nil || !strings.HasPrefix(mediaType, "application/json") {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *PritunlClient) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	var raw []map[string]any
	if err := c.do(ctx, http.MethodGet, "/organization", nil, &raw); err != nil {
		return nil, err
	}

	orgs := make([]domain.Organization, 0, len(raw))
	for _, item := range raw {
		org := domain.Organization{Extra: map[string]any{}}
		for k, v := range item {
			switch k {
			case "id":
				org.ID, _ = v.(string)
			case "name":
				org.Name, _ = v.(string)
			default:
				org.Extra[k] = v
			}
		}
		orgs = append(orgs, org)
	}
	return orgs, nil
}

func (c *PritunlClient) ListUsers(ctx context.Context, orgID string) ([]domain.RemoteUser, error) {
	var raw []map[string]any
	if err := c.do(ctx, http.MethodGet, "/user/"+orgID, nil, &raw); err != nil {
		return nil, err
	}

	users := make([]domain.RemoteUser, 0, len(raw))
	for _, item := range raw {
		u, err := domain.RemoteUserFromMap(item)
		if err != nil {
			return nil, fmt.Errorf("decode user list: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

func (c *PritunlClient) CreateUser(ctx context.Context, orgID string, user domain.NewUser) (domain.RemoteUser, error) {
	payload := map[string]any{
		"organization_id": orgID,
		"name":            user.Name,
		"email":           user.Email,
	}
	if user.Groups != nil {
		payload["groups"] = user.Groups
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/user/"+orgID, payload, &raw); err != nil {
		return domain.RemoteUser{}, err
	}

	created, err := singleUser(raw)
	if err != nil {
		return domain.RemoteUser{}, fmt.Errorf("create user %s: %w", user.Email, err)
	}
	if created.ID == "" {
		return domain.RemoteUser{}, fmt.Errorf("create user %s: response missing user id", user.Email)
	}
	return created, nil
}

func (c *PritunlClient) UpdateUserFull(ctx context.Context, orgID, userID string, user domain.RemoteUser) (domain.RemoteUser, error) {
	payload := user.AsMap()
	payload["organization_id"] = orgID

	var raw json.RawMessage
	path := "/user/" + orgID + "/" + userID
	if err := c.do(ctx, http.MethodPut, path, payload, &raw); err != nil {
		return domain.RemoteUser{}, err
	}
	if len(raw) == 0 {
		return user, nil
	}
	updated, err := singleUser(raw)
	if err != nil {
		return domain.RemoteUser{}, fmt.Errorf("update user %s: %w", userID, err)
	}
	return updated, nil
}

func (c *PritunlClient) DeleteUser(ctx context.Context, orgID, userID string) error {
	return c.do(ctx, http.MethodDelete, "/user/"+orgID+"/"+userID, nil, nil)
}

// singleUser accepts either one user object or a non-empty list of them.
func singleUser(raw json.RawMessage) (domain.RemoteUser, error) {
	if len(raw) == 0 {
		return domain.RemoteUser{}, fmt.Errorf("empty user response")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return domain.RemoteUser{}, err
	}

	switch v := payload.(type) {
	case map[string]any:
		return domain.RemoteUserFromMap(v)
	case []any:
		if len(v) > 0 {
			if obj, ok := v[0].(map[string]any); ok {
				return domain.RemoteUserFromMap(obj)
			}
		}
	}
	return domain.RemoteUser{}, fmt.Errorf("unexpected user response %.200s", string(raw))
}
