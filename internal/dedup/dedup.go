// Package dedup 把后端返回的行程记录列表折叠为每个逻辑行程一条的规范列表
//
// 后端的创建接口在重试路径上不幂等，读出的列表里可能出现：
//  1. 完全相同的 id（同一响应被拼接两次）
//  2. 同一 trip_ticket_id 下的多条记录（create 重试各自落库）
//  3. 无票记录按 (date, destination) 重复
//
// 这是客户端边界上的补偿性控制，属于正确性要求而非可选清理
package dedup

import (
	"fmt"
	"sort"

	"github.com/langchou/fleettrack/internal/models"
)

// Deduplicate 三遍去重，输出按 created_at 降序
// 性质：输入中出现的每个 trip_ticket_id 在输出中至多对应一条记录
func Deduplicate(records []models.TripRecord) []models.TripRecord {
	// 第一遍：剔除重复 id，保留首次出现
	seenIDs := make(map[int64]bool, len(records))
	unique := make([]models.TripRecord, 0, len(records))
	for _, r := range records {
		if seenIDs[r.ID] {
			continue
		}
		seenIDs[r.ID] = true
		unique = append(unique, r)
	}

	// 第二遍：按 trip_ticket_id 分组，组内保留 created_at 最新的一条
	// created_at 相等时保留先遇到的（稳定）
	byTicket := make(map[int64]models.TripRecord)
	ticketOrder := make([]int64, 0)
	unticketed := make([]models.TripRecord, 0)

	for _, r := range unique {
		if r.TripTicketID == nil {
			unticketed = append(unticketed, r)
			continue
		}

		ticket := *r.TripTicketID
		kept, ok := byTicket[ticket]
		if !ok {
			byTicket[ticket] = r
			ticketOrder = append(ticketOrder, ticket)
			continue
		}
		if r.CreatedAt.After(kept.CreatedAt) {
			byTicket[ticket] = r
		}
	}

	// 第三遍：无票记录按 (date, destination) 分组，保留 created_at 最新的一条
	byKey := make(map[string]models.TripRecord)
	keyOrder := make([]string, 0, len(unticketed))
	for _, r := range unticketed {
		key := fmt.Sprintf("%s|%s", r.Date, r.Destination)
		kept, ok := byKey[key]
		if !ok {
			byKey[key] = r
			keyOrder = append(keyOrder, key)
			continue
		}
		if r.CreatedAt.After(kept.CreatedAt) {
			byKey[key] = r
		}
	}

	out := make([]models.TripRecord, 0, len(ticketOrder)+len(keyOrder))
	for _, ticket := range ticketOrder {
		out = append(out, byTicket[ticket])
	}
	for _, key := range keyOrder {
		out = append(out, byKey[key])
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}
