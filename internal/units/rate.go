package units

import (
	"fmt"
	"time"
)

var rateUnits = [...]string{"B/s", "KiB/s", "MiB/s", "GiB/s", "TiB/s", "PiB/s"}

// FormatRate renders a bytes-per-second rate, keeping about three
// significant digits.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	v, i := bytesPerSec, 0
	for v >= 1024 && i < len(rateUnits)-1 {
		v /= 1024
		i++
	}
	prec := 0
	if v < 10 {
		prec = 2
	} else if v < 100 {
		prec = 1
	}
	return fmt.Sprintf("%.*f %s", prec, v, rateUnits[i])
}

// FormatDuration renders d to the nearest second, e.g. "1h 02m 03s",
// "2m 03s" or "3s".
func FormatDuration(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	h, m, s := secs/3600, secs/60%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
