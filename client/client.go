package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/a-h/jsonapi"
	"github.com/a-h/ragrouter/models"
)

func New(baseURL, apiKey string) Client {
	return Client{
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type Client struct {
	baseURL string
	apiKey  string
}

func (c Client) DocumentsPost(ctx context.Context, req models.DocumentsPostRequest) (resp models.DocumentsPostResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("documents").String()
	if err != nil {
		return resp, err
	}
	return jsonapi.Post[models.DocumentsPostRequest, models.DocumentsPostResponse](ctx, url, req, jsonapi.WithRequestHeader("Authorization", c.apiKey))
}

func (c Client) DocumentsDelete(ctx context.Context, documentURL string) (resp models.DocumentsDeleteResponse, err error) {
	u, err := jsonapi.URL(c.baseURL).Path("documents").String()
	if err != nil {
		return resp, err
	}
	u += "?" + url.Values{"url": []string{documentURL}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return resp, fmt.Errorf("failed to create request: %w", err)
	}
	res, err := jsonapi.Raw(httpReq, jsonapi.WithRequestHeader("Authorization", c.apiKey))
	if err != nil {
		return resp, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer res.Body.Close()
	if err = checkStatus(res); err != nil {
		return resp, err
	}
	err = json.NewDecoder(res.Body).Decode(&resp)
	return resp, err
}

func (c Client) RoutePost(ctx context.Context, req models.RoutePostRequest) (resp models.RoutePostResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("route").String()
	if err != nil {
		return resp, err
	}
	return jsonapi.Post[models.RoutePostRequest, models.RoutePostResponse](ctx, url, req, jsonapi.WithRequestHeader("Authorization", c.apiKey))
}

func (c Client) ContextPost(ctx context.Context, req models.ContextPostRequest) (resp models.ContextPostResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("context").String()
	if err != nil {
		return resp, err
	}
	return jsonapi.Post[models.ContextPostRequest, models.ContextPostResponse](ctx, url, req, jsonapi.WithRequestHeader("Authorization", c.apiKey))
}

func (c Client) QueryPost(ctx context.Context, req models.QueryPostRequest) (resp models.QueryPostResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("query").String()
	if err != nil {
		return resp, err
	}
	req.Stream = false
	return jsonapi.Post[models.QueryPostRequest, models.QueryPostResponse](ctx, url, req, jsonapi.WithRequestHeader("Authorization", c.apiKey))
}

// QueryStream posts the query and passes the answer to f as it arrives.
func (c Client) QueryStream(ctx context.Context, req models.QueryPostRequest, f func(ctx context.Context, chunk []byte) error) (err error) {
	url, err := jsonapi.URL(c.baseURL).Path("query").String()
	if err != nil {
		return err
	}
	req.Stream = true
	return c.postStream(ctx, url, req, f)
}

func (c Client) postStream(ctx context.Context, url string, req any, f func(ctx context.Context, chunk []byte) error) (err error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	res, err := jsonapi.Raw(httpReq, jsonapi.WithRequestHeader("Authorization", c.apiKey))
	if err != nil {
		return fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer res.Body.Close()
	if err = checkStatus(res); err != nil {
		return err
	}
	chunk := make([]byte, 1024)
	for {
		n, err := res.Body.Read(chunk)
		if n > 0 {
			if err := f(ctx, chunk[:n]); err != nil {
				return fmt.Errorf("failed to process chunk: %w", err)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
	}
}

func checkStatus(res *http.Response) error {
	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(res.Body)
		return jsonapi.InvalidStatusError{
			Status: res.StatusCode,
			Body:   string(body),
		}
	}
	return nil
}
