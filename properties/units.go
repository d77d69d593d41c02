package properties

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var ErrInvalidValue = errors.New("invalid value")

const (
	kib = 1 << 10
	mib = 1 << 20
	gib = 1 << 30
	tib = 1 << 40

	// PGBlockSize is the default unit of shared_buffers and effective_cache_size.
	PGBlockSize = 8 * kib
	// PGKilobyte is the default unit of work_mem and maintenance_work_mem.
	PGKilobyte = kib
)

func splitNumber(s string) (number, unit string) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && (unicode.IsDigit(rune(s[i])) || s[i] == '.' || (i == 0 && (s[i] == '-' || s[i] == '+'))) {
		i++
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// ParseJVMSize parses a HotSpot size such as "512m" or "4G". A bare number
// is bytes.
func ParseJVMSize(s string) (uint64, error) {
	number, unit := splitNumber(s)
	n, err := strconv.ParseUint(number, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: JVM size %q", ErrInvalidValue, s)
	}
	var mult uint64
	switch strings.ToLower(unit) {
	case "":
		mult = 1
	case "k":
		mult = kib
	case "m":
		mult = mib
	case "g":
		mult = gib
	case "t":
		mult = tib
	default:
		return 0, fmt.Errorf("%w: JVM size %q has unknown unit", ErrInvalidValue, s)
	}
	if n > math.MaxUint64/mult {
		return 0, fmt.Errorf("%w: JVM size %q overflows", ErrInvalidValue, s)
	}
	return n * mult, nil
}

// FormatJVMSize renders bytes in the largest exact HotSpot unit.
func FormatJVMSize(bytes uint64) string {
	switch {
	case bytes == 0:
		return "0"
	case bytes%gib == 0:
		return strconv.FormatUint(bytes/gib, 10) + "g"
	case bytes%mib == 0:
		return strconv.FormatUint(bytes/mib, 10) + "m"
	case bytes%kib == 0:
		return strconv.FormatUint(bytes/kib, 10) + "k"
	}
	return strconv.FormatUint(bytes, 10)
}

// ParsePGMemory parses a PostgreSQL memory setting. Units are
// case-sensitive in PostgreSQL (kB, MB, GB, TB); a bare number is
// multiplied by defaultUnit.
func ParsePGMemory(s string, defaultUnit uint64) (uint64, error) {
	number, unit := splitNumber(s)
	n, err := strconv.ParseUint(number, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: memory setting %q", ErrInvalidValue, s)
	}
	var mult uint64
	switch unit {
	case "":
		mult = defaultUnit
	case "B":
		mult = 1
	case "kB":
		mult = kib
	case "MB":
		mult = mib
	case "GB":
		mult = gib
	case "TB":
		mult = tib
	default:
		return 0, fmt.Errorf("%w: memory setting %q has unknown unit (use kB, MB, GB or TB)", ErrInvalidValue, s)
	}
	if mult > 1 && n > math.MaxUint64/mult {
		return 0, fmt.Errorf("%w: memory setting %q overflows", ErrInvalidValue, s)
	}
	return n * mult, nil
}

// FormatPGMemory renders bytes in the largest exact PostgreSQL unit,
// rounding down to whole kilobytes.
func FormatPGMemory(bytes uint64) string {
	bytes -= bytes % kib
	switch {
	case bytes == 0:
		return "0"
	case bytes%tib == 0:
		return strconv.FormatUint(bytes/tib, 10) + "TB"
	case bytes%gib == 0:
		return strconv.FormatUint(bytes/gib, 10) + "GB"
	case bytes%mib == 0:
		return strconv.FormatUint(bytes/mib, 10) + "MB"
	}
	return strconv.FormatUint(bytes/kib, 10) + "kB"
}

// ParsePGDuration parses a PostgreSQL time setting; a bare number is ms.
func ParsePGDuration(s string) (time.Duration, error) {
	number, unit := splitNumber(s)
	n, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: time setting %q", ErrInvalidValue, s)
	}
	var mult time.Duration
	switch unit {
	case "us":
		mult = time.Microsecond
	case "", "ms":
		mult = time.Millisecond
	case "s":
		mult = time.Second
	case "min":
		mult = time.Minute
	case "h":
		mult = time.Hour
	case "d":
		mult = 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: time setting %q has unknown unit (use us, ms, s, min, h or d)", ErrInvalidValue, s)
	}
	return time.Duration(n * float64(mult)), nil
}

// FormatPGDuration renders a duration in the largest exact PostgreSQL unit.
func FormatPGDuration(d time.Duration) string {
	ms := d.Milliseconds()
	switch {
	case ms == 0:
		return "0"
	case d%(24*time.Hour) == 0:
		return strconv.FormatInt(int64(d/(24*time.Hour)), 10) + "d"
	case d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	case d%time.Minute == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "min"
	case d%time.Second == 0:
		return strconv.FormatInt(int64(d/time.Second), 10) + "s"
	}
	return strconv.FormatInt(ms, 10) + "ms"
}

// ParseSpringDuration accepts the forms Spring Boot binds to Duration:
// "500ms", "30s", "10m", "2h", "1d", ISO-8601 ("PT10M") and plain
// milliseconds.
func ParseSpringDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty duration", ErrInvalidValue)
	}
	upper := strings.ToUpper(s)
	if strings.HasPrefix(upper, "P") || strings.HasPrefix(upper, "-P") {
		return parseISODuration(upper)
	}
	number, unit := splitNumber(s)
	n, err := strconv.ParseInt(number, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q", ErrInvalidValue, s)
	}
	mult, ok := simpleUnits[strings.ToLower(unit)]
	if !ok {
		return 0, fmt.Errorf("%w: duration %q has unknown unit", ErrInvalidValue, s)
	}
	return time.Duration(n) * mult, nil
}

var simpleUnits = map[string]time.Duration{
	"":   time.Millisecond,
	"ns": time.Nanosecond,
	"us": time.Microsecond,
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
}

func parseISODuration(s string) (time.Duration, error) {
	negative := strings.HasPrefix(s, "-")
	rest := strings.TrimPrefix(strings.TrimPrefix(s, "-"), "P")
	var total float64
	inTime := false
	for rest != "" {
		if rest[0] == 'T' {
			inTime = true
			rest = rest[1:]
			continue
		}
		number, tail := splitNumber(rest)
		if number == "" || tail == "" {
			return 0, fmt.Errorf("%w: ISO-8601 duration %q", ErrInvalidValue, s)
		}
		n, err := strconv.ParseFloat(number, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: ISO-8601 duration %q", ErrInvalidValue, s)
		}
		switch {
		case tail[0] == 'D' && !inTime:
			total += n * float64(24*time.Hour)
		case tail[0] == 'H' && inTime:
			total += n * float64(time.Hour)
		case tail[0] == 'M' && inTime:
			total += n * float64(time.Minute)
		case tail[0] == 'S' && inTime:
			total += n * float64(time.Second)
		default:
			return 0, fmt.Errorf("%w: ISO-8601 duration %q", ErrInvalidValue, s)
		}
		rest = tail[1:]
	}
	if negative {
		total = -total
	}
	return time.Duration(math.Round(total)), nil
}

// FormatSpringDuration renders a duration with the largest exact simple unit.
func FormatSpringDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "0"
	case d%(24*time.Hour) == 0:
		return strconv.FormatInt(int64(d/(24*time.Hour)), 10) + "d"
	case d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	case d%time.Minute == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	case d%time.Second == 0:
		return strconv.FormatInt(int64(d/time.Second), 10) + "s"
	}
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}

// CaffeineSpec is the subset of a Caffeine cache spec the advisor inspects.
type CaffeineSpec struct {
	MaximumSize       int64
	MaximumWeight     int64
	ExpireAfterWrite  time.Duration
	ExpireAfterAccess time.Duration
	HasMaximum        bool
	HasExpiry         bool

	// ZeroExpiry is set when an expiry of zero evicts entries on write.
	ZeroExpiry bool
}

// ParseCaffeineSpec parses "maximumSize=500,expireAfterAccess=600s".
func ParseCaffeineSpec(s string) (CaffeineSpec, error) {
	var spec CaffeineSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		switch name {
		case "maximumSize", "maximumWeight":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return spec, fmt.Errorf("%w: caffeine %s %q", ErrInvalidValue, name, value)
			}
			if name == "maximumSize" {
				spec.MaximumSize = n
			} else {
				spec.MaximumWeight = n
			}
			spec.HasMaximum = true
		case "expireAfterWrite", "expireAfterAccess":
			d, err := parseCaffeineDuration(value)
			if err != nil {
				return spec, err
			}
			if name == "expireAfterWrite" {
				spec.ExpireAfterWrite = d
			} else {
				spec.ExpireAfterAccess = d
			}
			spec.HasExpiry = true
			if d == 0 {
				spec.ZeroExpiry = true
			}
		}
	}
	return spec, nil
}

// Caffeine durations are non-negative and always carry one of d, h, m or s.
func parseCaffeineDuration(s string) (time.Duration, error) {
	number, unit := splitNumber(s)
	n, err := strconv.ParseInt(number, 10, 64)
	if err != nil || n < 0 || unit == "" {
		return 0, fmt.Errorf("%w: caffeine duration %q", ErrInvalidValue, s)
	}
	var mult time.Duration
	switch strings.ToLower(unit) {
	case "d":
		mult = 24 * time.Hour
	case "h":
		mult = time.Hour
	case "m":
		mult = time.Minute
	case "s":
		mult = time.Second
	default:
		return 0, fmt.Errorf("%w: caffeine duration %q", ErrInvalidValue, s)
	}
	if n > math.MaxInt64/int64(mult) {
		return 0, fmt.Errorf("%w: caffeine duration %q overflows", ErrInvalidValue, s)
	}
	return time.Duration(n) * mult, nil
}
