package geo

import (
	"math"

	"github.com/langchou/fleettrack/internal/models"
)

// earthRadiusKm 地球半径（公里）
const earthRadiusKm = 6371

// DistanceKm 计算两坐标间的大圆距离（公里），使用半正矢公式
// 纯函数：相同坐标返回 0，无错误分支
func DistanceKm(a, b models.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// RouteDistanceKm 计算轨迹的累计距离（相邻点两两求和）
// 点数小于 2 时返回 0
func RouteDistanceKm(route []models.Coordinate) float64 {
	if len(route) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(route); i++ {
		total += DistanceKm(route[i-1], route[i])
	}
	return total
}
