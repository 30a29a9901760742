// Package fuel 油料核算：从期初余量、领用、途中购买和消耗推导合计与期末余量
// 所有函数均为值进值出的纯函数，不产生副作用
package fuel

import (
	"math"

	"github.com/langchou/fleettrack/internal/models"
)

// DefaultEfficiencyKmPerL 默认油耗换算系数（公里/升）
// 这是粗略平均值，应优先使用车辆档案里的 per-vehicle 配置
const DefaultEfficiencyKmPerL = 10

// Recompute 重算油料合计字段，每次影响油料数字的编辑后都必须调用
// 不变量:
//
//	fuel_total       = balance_start + issued_office + purchased_trip
//	fuel_balance_end = max(0, fuel_total - used)
func Recompute(d models.TripLogDraft) models.TripLogDraft {
	d.FuelTotal = d.FuelBalanceStart + d.FuelIssuedOffice + d.FuelPurchasedTrip

	d.FuelBalanceEnd = d.FuelTotal - d.FuelUsed
	if d.FuelBalanceEnd < 0 {
		d.FuelBalanceEnd = 0
	}

	return d
}

// SyncSpeedometer 里程表字段编辑后同步速度表字段
// 里程与速度表是同一"距离"事实的两种读数，以里程表为准
//
//	speedometer_distance = max(0, end - start)
func SyncSpeedometer(d models.TripLogDraft) models.TripLogDraft {
	d.SpeedometerStart = d.OdometerStart
	d.SpeedometerEnd = d.OdometerEnd

	d.SpeedometerDistance = d.SpeedometerEnd - d.SpeedometerStart
	if d.SpeedometerDistance < 0 {
		d.SpeedometerDistance = 0
	}

	return d
}

// EstimateUsedLiters 按行驶里程估算油耗（升），保留两位小数
// 仅当里程表起止读数齐全且差值为正时才应采用；否则保持人工填写
// 注意：这是启发式默认值，不是测量值
func EstimateUsedLiters(distanceKm, efficiencyKmPerL float64) float64 {
	if distanceKm <= 0 {
		return 0
	}
	if efficiencyKmPerL <= 0 {
		efficiencyKmPerL = DefaultEfficiencyKmPerL
	}

	return math.Round(distanceKm/efficiencyKmPerL*100) / 100
}
