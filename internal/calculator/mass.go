package calculator

import (
	"github.com/cockroachdb/apd/v3"
)

var ledgerCtx = apd.BaseContext.WithPrecision(34)

// Mass 千克数的十进制精确累加值，避免浮点累加顺序导致的守恒误差
type Mass struct {
	value apd.Decimal
}

// MassOf 由浮点千克数构造（取最短十进制表示）
func MassOf(kg float64) Mass {
	var m Mass
	if _, err := m.value.SetFloat64(kg); err != nil {
		m.value.SetInt64(0)
	}
	return m
}

// Add 返回 m + other
func (m Mass) Add(other Mass) Mass {
	var r Mass
	ledgerCtx.Add(&r.value, &m.value, &other.value)
	return r
}

// Sub 返回 m - other
func (m Mass) Sub(other Mass) Mass {
	var r Mass
	ledgerCtx.Sub(&r.value, &m.value, &other.value)
	return r
}

// Abs 绝对值
func (m Mass) Abs() Mass {
	var r Mass
	ledgerCtx.Abs(&r.value, &m.value)
	return r
}

// Cmp 比较大小
func (m Mass) Cmp(other Mass) int {
	return m.value.Cmp(&other.value)
}

// IsZero 是否为零
func (m Mass) IsZero() bool {
	return m.value.IsZero()
}

// Float64 输出用的浮点值
func (m Mass) Float64() float64 {
	f, err := m.value.Float64()
	if err != nil {
		return 0
	}
	return f
}

func (m Mass) String() string {
	return m.value.Text('f')
}

// SumKg 精确求和
func SumKg(values ...float64) Mass {
	var total Mass
	for _, v := range values {
		total = total.Add(MassOf(v))
	}
	return total
}
