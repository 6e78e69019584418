package live

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bt-bridge/gemini-live/shared"
	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
)

const DefaultRESTBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ModelInfo is the subset of the models resource the preflight check reads.
type ModelInfo struct {
	Name                       string   `json:"name" yaml:"name"`
	DisplayName                string   `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Description                string   `json:"description,omitempty" yaml:"description,omitempty"`
	InputTokenLimit            int      `json:"inputTokenLimit,omitempty" yaml:"inputTokenLimit,omitempty"`
	OutputTokenLimit           int      `json:"outputTokenLimit,omitempty" yaml:"outputTokenLimit,omitempty"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods,omitempty" yaml:"supportedGenerationMethods,omitempty"`
}

// SupportsLive reports whether the model lists bidiGenerateContent among its methods.
func (m ModelInfo) SupportsLive() bool {
	for _, method := range m.SupportedGenerationMethods {
		if strings.EqualFold(method, "bidiGenerateContent") {
			return true
		}
	}
	return false
}

// CheckModel fetches the model resource for cfg.Model with cfg.APIKey, so a bad key or model name
// surfaces before a WebSocket is opened. restBase overrides DefaultRESTBaseURL when non-empty.
func CheckModel(ctx context.Context, cfg Config, restBase string) (*ModelInfo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if restBase == "" {
		restBase = DefaultRESTBaseURL
	}
	base, err := url.Parse(restBase)
	if err != nil {
		return nil, &shared.ConfigurationError{Field: "restBaseURL", Err: err}
	}
	u := base.JoinPath(cfg.ModelName())
	q := u.Query()
	q.Set("key", cfg.APIKey)
	u.RawQuery = q.Encode()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	release := func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}

	req.SetRequestURI(u.String())
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	errC := make(chan error, 1)
	go func() {
		errC <- fasthttp.Do(req, resp)
	}()
	select {
	case <-ctx.Done():
		// req and resp stay in use until Do returns.
		go func() {
			<-errC
			release()
		}()
		return nil, ctx.Err()
	case err := <-errC:
		defer release()
		if err != nil {
			return nil, &shared.TransportError{Op: "preflight", URL: u.String(), Err: err}
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		var body struct {
			Error ServerError `json:"error"`
		}
		if err := sonic.Unmarshal(resp.Body(), &body); err == nil && body.Error.Message != "" {
			return nil, fmt.Errorf("model %s: %s", cfg.ModelName(), body.Error.Text())
		}
		return nil, fmt.Errorf("model %s: unexpected status code %d", cfg.ModelName(), resp.StatusCode())
	}

	info := new(ModelInfo)
	if err := sonic.Unmarshal(resp.Body(), info); err != nil {
		return nil, fmt.Errorf("decoding model info: %w", err)
	}
	return info, nil
}
