// Package timefmt 时刻字符串的 12/24 小时制互转
// 表单编辑与草稿持久化使用 12 小时制，API 边界使用 24 小时制
// 对合法输入保证往返一致：To24(To12(x)) == x
package timefmt

import (
	"fmt"
	"time"
)

const (
	layout24 = "15:04"
	layout12 = "03:04 PM"
)

// To12 "HH:MM"（24 小时制）转 "hh:MM AM/PM"
func To12(s string) (string, error) {
	t, err := time.Parse(layout24, s)
	if err != nil {
		return "", fmt.Errorf("parse 24h time %q: %w", s, err)
	}
	return t.Format(layout12), nil
}

// To24 "hh:MM AM/PM" 转 "HH:MM"（24 小时制）
func To24(s string) (string, error) {
	t, err := time.Parse(layout12, s)
	if err != nil {
		return "", fmt.Errorf("parse 12h time %q: %w", s, err)
	}
	return t.Format(layout24), nil
}
