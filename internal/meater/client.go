package meater

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	ms "meater_sync"
)

// DefaultBaseURL is the public MEATER cloud REST API.
const DefaultBaseURL = "https://public-api.cloud.meater.com/v1"

const maxBodyBytes = 1 << 20 // 1 MB

// Client talks to the MEATER cloud API. It holds no session state; callers pass the token.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for baseURL. A nil httpClient means http.DefaultClient;
// no timeout is imposed beyond what the transport itself enforces.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges email and password for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	const op = "login"
	payload, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("%s: encode body: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	env, err := c.do(op, req)
	if err != nil {
		var e *Error
		if errors.As(err, &e) && (e.Class == ClassRemote || e.Class == ClassAuth) {
			e.Class, e.Kind = ClassAuth, KindInvalidCredentials
		}
		return "", err
	}

	var data ms.LoginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", newError(op, ClassProtocol, KindMalformedResponse, err)
	}
	if data.Token == "" {
		return "", newError(op, ClassProtocol, KindMalformedResponse, errors.New("empty token"))
	}
	return data.Token, nil
}

// ListDevices returns every probe on the account.
func (c *Client) ListDevices(ctx context.Context, token string) ([]ms.RemoteDevice, error) {
	const op = "list devices"
	req, err := c.authorized(ctx, "/devices", token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	env, err := c.do(op, req)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Devices *[]ms.RemoteDevice `json:"devices"`
	}
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, newError(op, ClassProtocol, KindMalformedResponse, err)
	}
	if raw.Devices == nil {
		return nil, newError(op, ClassProtocol, KindMalformedResponse, errors.New("missing devices"))
	}
	for i, d := range *raw.Devices {
		if d.ID == "" {
			return nil, newError(op, ClassProtocol, KindMalformedResponse, fmt.Errorf("device %d has no id", i))
		}
	}
	return *raw.Devices, nil
}

// FetchDevice returns the current snapshot of one probe.
func (c *Client) FetchDevice(ctx context.Context, token, id string) (ms.RemoteDevice, error) {
	op := "fetch device " + id
	req, err := c.authorized(ctx, "/devices/"+url.PathEscape(id), token)
	if err != nil {
		return ms.RemoteDevice{}, fmt.Errorf("%s: %w", op, err)
	}
	env, err := c.do(op, req)
	if err != nil {
		return ms.RemoteDevice{}, err
	}

	var d ms.RemoteDevice
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return ms.RemoteDevice{}, newError(op, ClassProtocol, KindMalformedResponse, err)
	}
	if d.ID == "" {
		return ms.RemoteDevice{}, newError(op, ClassProtocol, KindMalformedResponse, errors.New("device has no id"))
	}
	return d, nil
}

func (c *Client) authorized(ctx context.Context, path, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes the envelope. A non-OK transport or payload status
// yields a status error carrying both codes.
func (c *Client) do(op string, req *http.Request) (ms.Envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ms.Envelope{}, newError(op, ClassNetwork, KindTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ms.Envelope{}, newError(op, ClassNetwork, KindTransport, err)
	}

	var env ms.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if Classify(resp.StatusCode) != OK {
			// Error pages are not always JSON; the transport code is enough.
			return ms.Envelope{}, statusError(op, resp.StatusCode, 0)
		}
		return ms.Envelope{}, newError(op, ClassProtocol, KindMalformedResponse, err)
	}

	if env.StatusCode == 0 {
		if Classify(resp.StatusCode) != OK {
			return ms.Envelope{}, statusError(op, resp.StatusCode, 0)
		}
		return ms.Envelope{}, newError(op, ClassProtocol, KindMalformedResponse, errors.New("missing statusCode"))
	}
	if Classify(resp.StatusCode) != OK || Classify(env.StatusCode) != OK {
		return ms.Envelope{}, statusError(op, resp.StatusCode, env.StatusCode)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return ms.Envelope{}, newError(op, ClassProtocol, KindMalformedResponse, errors.New("missing data"))
	}
	return env, nil
}
