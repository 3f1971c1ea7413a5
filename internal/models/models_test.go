package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPageWindow 测试分页窗口起点的计算
func TestPageWindow(t *testing.T) {
	start, ok := PageWindow(25, 1, 10)
	assert.True(t, ok)
	assert.Equal(t, 0, start)

	start, ok = PageWindow(25, 3, 10)
	assert.True(t, ok, "末页仍在总页数内")
	assert.Equal(t, 20, start)

	_, ok = PageWindow(25, 4, 10)
	assert.False(t, ok, "超出总页数的页应判定越界")

	_, ok = PageWindow(0, 1, 10)
	assert.False(t, ok, "无记录时任何页都越界")

	start, ok = PageWindow(10, 1, 10)
	assert.True(t, ok, "恰好一整页")
	assert.Equal(t, 0, start)
}

// TestPageWindowHugePageNumber 测试极大页码不产生负的窗口起点
func TestPageWindowHugePageNumber(t *testing.T) {
	_, ok := PageWindow(1, 576460752303423489, 16)
	assert.False(t, ok, "极大页码应判定越界而不是回绕为负数")

	_, ok = PageWindow(1000, 1<<60, 500)
	assert.False(t, ok)
}
