package models

import "time"

// Coordinate 经纬度坐标
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationSample 定位采样点
// 由定位提供方产生，不逐条持久化；只保留派生的轨迹和最新采样
type LocationSample struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  *float64  `json:"accuracy,omitempty"` // 米
	Speed     *float64  `json:"speed,omitempty"`    // km/h
	Heading   *float64  `json:"heading,omitempty"`  // 度
	Timestamp time.Time `json:"timestamp"`
}

// Coordinate 返回采样点对应的坐标
func (s LocationSample) Coordinate() Coordinate {
	return Coordinate{Lat: s.Lat, Lng: s.Lng}
}

// Address 结构化地址信息（用于逆地理编码结果）
type Address struct {
	FormattedAddress string `json:"formatted_address,omitempty"` // 完整格式化地址
	Country          string `json:"country,omitempty"`           // 国家
	Province         string `json:"province,omitempty"`          // 省
	City             string `json:"city,omitempty"`              // 市
	District         string `json:"district,omitempty"`          // 区/县
	Township         string `json:"township,omitempty"`          // 乡镇/街道
	Street           string `json:"street,omitempty"`            // 道路
	StreetNumber     string `json:"street_number,omitempty"`     // 门牌号
}
