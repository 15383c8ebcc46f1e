package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

const (
	maxResponseBytes = 1 << 20

	// gatewayOK is the business success code of enveloped gateway calls.
	gatewayOK = 200
	// gatewayUnauthorized is returned when the iot token is missing or expired.
	gatewayUnauthorized = 401
)

// iotRequest is the signed gateway envelope.
type iotRequest struct {
	ID      string      `json:"id"`
	Version string      `json:"version"`
	Request requestMeta `json:"request"`
	Params  any         `json:"params"`
}

type requestMeta struct {
	APIVer   string `json:"apiVer"`
	Language string `json:"language"`
	IoTToken string `json:"iotToken,omitempty"`
}

// gatewayResponse is the common shape of enveloped responses.
type gatewayResponse struct {
	ID           string          `json:"id"`
	Code         int             `json:"code"`
	Message      string          `json:"message"`
	LocalizedMsg string          `json:"localizedMsg"`
	Data         json.RawMessage `json:"data"`
}

func (r gatewayResponse) describe() string {
	if r.LocalizedMsg != "" {
		return r.LocalizedMsg
	}
	return r.Message
}

// gateway performs signed calls against API gateway hosts.
type gateway struct {
	http     *http.Client
	scheme   string
	language string
	signer   signer
}

// call posts an enveloped request and returns the decoded response.
// A non-success business code is returned to the caller as a response,
// not as an error.
func (g *gateway) call(ctx context.Context, host, path, apiVer, iotToken string, params any) (gatewayResponse, error) {
	body, err := json.Marshal(iotRequest{
		ID:      uuid.NewString(),
		Version: "1.0",
		Request: requestMeta{APIVer: apiVer, Language: g.language, IoTToken: iotToken},
		Params:  params,
	})
	if err != nil {
		return gatewayResponse{}, fmt.Errorf("encoding %s request: %w", path, err)
	}

	var resp gatewayResponse
	if err := g.post(ctx, host, path, nil, body, &resp); err != nil {
		return gatewayResponse{}, err
	}
	return resp, nil
}

// raw posts a signed request with a caller-built body and decodes into out.
func (g *gateway) raw(ctx context.Context, host, path string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}
	return g.post(ctx, host, path, headers, body, out)
}

func (g *gateway) post(ctx context.Context, host, path string, headers map[string]string, body []byte, out any) error {
	if host == "" {
		return fmt.Errorf("%w: %s: no gateway host", ErrConnection, path)
	}
	u := url.URL{Scheme: g.scheme, Host: host, Path: path}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building %s request: %w", ErrConnection, path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	g.signer.sign(req, body)

	return doJSON(g.http, req, out)
}

// doJSON executes req and decodes a JSON body into out. Transport errors,
// gateway-level rejections and undecodable bodies are all ErrConnection.
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnection, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %w", ErrConnection, req.URL.Path, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError ||
		(resp.StatusCode >= http.StatusBadRequest && len(bytes.TrimSpace(data)) == 0) {
		reason := resp.Header.Get("X-Ca-Error-Message")
		if reason == "" {
			reason = resp.Status
		}
		return fmt.Errorf("%w: %s: %s", ErrConnection, req.URL.Path, reason)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", ErrConnection, req.URL.Path, err)
	}
	return nil
}

// decodeData unmarshals an envelope's data field, mapping failures to ErrDecode.
func decodeData(path string, raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: %s: missing data", ErrDecode, path)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	return nil
}
