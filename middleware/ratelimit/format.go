// utilitário pequeno para formatação dos headers de cota.

package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

// formatEpochMillis serializa o instante absoluto de reset em ms desde a epoch.
func formatEpochMillis(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

// formatRetryAfter arredonda para cima, com mínimo de 1s.
func formatRetryAfter(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	return formatInt(max(1, secs))
}
