package alert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeduperMemoryWindow(t *testing.T) {
	d := NewDeduper(nil, nil, time.Hour)
	now := time.Unix(1700000000, 0)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	require.False(t, d.IsDuplicate(ctx, "bank-a:battery.alarm"))
	require.True(t, d.IsDuplicate(ctx, "bank-a:battery.alarm"))
	require.False(t, d.IsDuplicate(ctx, "bank-b:battery.alarm"))

	// 窗口过期后重新放行
	now = now.Add(2 * time.Hour)
	require.False(t, d.IsDuplicate(ctx, "bank-a:battery.alarm"))

	// 空键永远放行
	require.False(t, d.IsDuplicate(ctx, ""))
	require.False(t, d.IsDuplicate(ctx, ""))
}
