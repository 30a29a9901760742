// Package backend 行程后端 REST 客户端（外部协作者）
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 后端错误
var (
	// ErrNotFound 资源不存在
	ErrNotFound = errors.New("backend: not found")
	// ErrNetwork 网络层失败（超时、连接失败等）
	ErrNetwork = errors.New("backend: network error")
)

// ConflictError 创建冲突：该行车票已存在行车日志
// 冲突响应里带有既有日志的 id，调用方应改走按 id 更新
type ConflictError struct {
	ExistingID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("backend: trip log conflict, existing id=%d", e.ExistingID)
}

// AsConflict 从错误链中提取 ConflictError
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Client 后端 API 客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient 创建客户端
func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		token:   token,
	}
}

// doRequest 执行带认证的请求
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Fleettrack/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return resp, nil
}

// conflictBody 409 响应体
type conflictBody struct {
	Error    string `json:"error"`
	Existing *struct {
		ID int64 `json:"id"`
	} `json:"existing"`
}

// decode 按状态码归类错误并解码响应体
func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		var cb conflictBody
		if err := json.Unmarshal(body, &cb); err == nil && cb.Existing != nil {
			return &ConflictError{ExistingID: cb.Existing.ID}
		}
		return fmt.Errorf("backend: conflict without existing id: %s", string(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("backend: status=%d body=%s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// dataWrapper 后端统一的 {"data": ...} 包装
type dataWrapper struct {
	Data json.RawMessage `json:"data"`
}

// decodeData 解码响应并解包 data 字段
func decodeData(resp *http.Response, out interface{}) error {
	var wrapper dataWrapper
	if err := decode(resp, &wrapper); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(wrapper.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// get 请求并解包 data 字段
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	return decodeData(resp, out)
}
