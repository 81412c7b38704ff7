// Package dayclock 按固定时区计算日期键
//
// 每日签到、每日任务的重置都通过 Clock 判断"今天"，
// 与服务器本地时区和请求来源无关。
package dayclock

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Layout 日期键格式，字典序即时间顺序
const Layout = "2006-01-02"

type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New 根据 IANA 时区名创建 Clock
func New(zone string) (*Clock, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("加载时区 %q 失败: %w", zone, err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// WithNow 返回使用指定时间源的副本
func (c *Clock) WithNow(now func() time.Time) *Clock {
	return &Clock{loc: c.loc, now: now}
}

func (c *Clock) Now() time.Time { return c.now() }

// Today 当前时刻的日期键
func (c *Clock) Today() string {
	return c.DayKey(c.now())
}

// DayKey 把时刻换算成该时区下的日期键
func (c *Clock) DayKey(t time.Time) string {
	return t.In(c.loc).Format(Layout)
}
