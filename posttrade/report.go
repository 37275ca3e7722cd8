package posttrade

import (
	"fmt"
	"io"
	"strings"
)

// WriteSummary 输出会话指标表：胜率、盈亏、最大盈利、最大回撤，保留 4 位小数。
//
//	Session Metrics                          Value
//	----------------------------------------------
//	Session win rate                        0.5100
//	Session profit (loss)                 100.0000
func WriteSummary(w io.Writer, m Metrics) error {
	winRate := "n/a"
	if r, ok := m.WinRate(); ok {
		winRate = fmt.Sprintf("%.4f", r)
	}
	rows := [][2]string{
		{"Session win rate", winRate},
		{"Session profit (loss)", m.PnL.StringFixed(4)},
		{"Session maximum profit", m.Peak.StringFixed(4)},
		{"Session maximum drawdown", m.Drawdown.StringFixed(4)},
		{"Session matched trades", fmt.Sprint(m.Matched)},
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %15s\n%s\n", "Session Metrics", "Value", strings.Repeat("-", 46))
	for _, r := range rows {
		fmt.Fprintf(&b, "%-30s %15s\n", r[0], r[1])
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Summary 以字符串形式返回 WriteSummary 的输出。
func Summary(m Metrics) string {
	var b strings.Builder
	_ = WriteSummary(&b, m)
	return b.String()
}
