// Package geocoder 逆地理编码客户端
// 仅用于展示层的地址装饰：失败降级为占位字符串，绝不阻塞追踪
// 配置了高德 API Key 时优先使用高德，否则使用 Nominatim（OpenStreetMap）
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/fleettrack/internal/models"
)

// Client 逆地理编码客户端
type Client struct {
	amapAPIKey string
	httpClient *http.Client
	logger     *zap.Logger

	// 缓存：同一坐标（约 11 米精度）不重复请求
	cache   map[string]*models.Address
	cacheMu sync.RWMutex

	// Nominatim 要求每秒至多 1 次请求
	lastNominatim time.Time
	nominatimMu   sync.Mutex
}

// NewClient 创建客户端
func NewClient(amapAPIKey string, logger *zap.Logger) *Client {
	return &Client{
		amapAPIKey: amapAPIKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		cache:      make(map[string]*models.Address),
	}
}

// ReverseGeocode 根据经纬度获取结构化地址
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (*models.Address, error) {
	cacheKey := fmt.Sprintf("%.4f,%.4f", lat, lng)

	c.cacheMu.RLock()
	if addr, ok := c.cache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		return addr, nil
	}
	c.cacheMu.RUnlock()

	var addr *models.Address
	var err error
	if c.amapAPIKey != "" {
		addr, err = c.viaAmap(ctx, lat, lng)
	} else {
		addr, err = c.viaNominatim(ctx, lat, lng)
	}
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	if len(c.cache) > 10000 {
		c.cache = make(map[string]*models.Address)
	}
	c.cache[cacheKey] = addr
	c.cacheMu.Unlock()

	return addr, nil
}

// amapResponse 高德逆地理编码响应
type amapResponse struct {
	Status    string `json:"status"`
	Info      string `json:"info"`
	Regeocode *struct {
		FormattedAddress string `json:"formatted_address"`
		AddressComponent struct {
			Country  string      `json:"country"`
			Province string      `json:"province"`
			City     interface{} `json:"city"` // 可能为空数组 []
			District interface{} `json:"district"`
			Street   interface{} `json:"street"`
		} `json:"addressComponent"`
	} `json:"regeocode"`
}

func (c *Client) viaAmap(ctx context.Context, lat, lng float64) (*models.Address, error) {
	// 高德要求经度在前
	location := fmt.Sprintf("%.6f,%.6f", lng, lat)
	apiURL := fmt.Sprintf(
		"https://restapi.amap.com/v3/geocode/regeo?key=%s&location=%s&extensions=base&output=JSON",
		url.QueryEscape(c.amapAPIKey), url.QueryEscape(location),
	)

	var result amapResponse
	if err := c.fetch(ctx, apiURL, nil, &result); err != nil {
		return nil, err
	}
	if result.Status != "1" || result.Regeocode == nil {
		return nil, fmt.Errorf("amap api error: %s", result.Info)
	}

	comp := result.Regeocode.AddressComponent
	return &models.Address{
		FormattedAddress: result.Regeocode.FormattedAddress,
		Country:          comp.Country,
		Province:         comp.Province,
		City:             asString(comp.City),
		District:         asString(comp.District),
		Street:           asString(comp.Street),
	}, nil
}

// nominatimResponse Nominatim 逆地理编码响应
type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Road    string `json:"road"`
		Suburb  string `json:"suburb"`
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		County  string `json:"county"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

func (c *Client) viaNominatim(ctx context.Context, lat, lng float64) (*models.Address, error) {
	// 限流：两次请求间隔至少 1 秒
	c.nominatimMu.Lock()
	if wait := time.Second - time.Since(c.lastNominatim); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			c.nominatimMu.Unlock()
			return nil, ctx.Err()
		}
	}
	c.lastNominatim = time.Now()
	c.nominatimMu.Unlock()

	apiURL := fmt.Sprintf(
		"https://nominatim.openstreetmap.org/reverse?lat=%.6f&lon=%.6f&format=json",
		lat, lng,
	)

	var result nominatimResponse
	headers := map[string]string{"User-Agent": "Fleettrack/1.0 (driver trip logger)"}
	if err := c.fetch(ctx, apiURL, headers, &result); err != nil {
		return nil, err
	}

	// 城市字段可能落在 city/town/village 任意一个里
	city := result.Address.City
	if city == "" {
		city = result.Address.Town
	}
	if city == "" {
		city = result.Address.Village
	}

	return &models.Address{
		FormattedAddress: result.DisplayName,
		Country:          result.Address.Country,
		Province:         result.Address.State,
		City:             city,
		District:         result.Address.County,
		Street:           result.Address.Road,
	}, nil
}

// fetch 执行 GET 请求并解码 JSON
func (c *Client) fetch(ctx context.Context, apiURL string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocode api returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// asString 高德的部分字段可能是字符串或空数组 []
func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
