package executor

import (
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substitute replaces ${var}, ${sensor:id} and ${last_extracted}
// placeholders in s. ${sensor:id} reads the session sensor cache (a
// sensor not yet captured this run resolves to "").
func (c *flowContext) substitute(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]

		if name == "last_extracted" {
			c.mu.Lock()
			v := c.lastExtracted
			c.mu.Unlock()
			return v
		}

		if strings.HasPrefix(name, "sensor:") {
			sensorID := strings.TrimPrefix(name, "sensor:")
			c.mu.Lock()
			v := c.sessionSensors[sensorID]
			c.mu.Unlock()
			return v
		}

		if v, ok := c.getVar(name); ok {
			return v
		}
		return ""
	})
}

// numericValue attempts to coerce s to a float64, matching the
// "numeric coercion attempted first then string fallback" rule used by
// both increment and the var: condition comparator.
func numericValue(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// incrementValue applies increment_by to a variable's current value,
// treating a missing or non-numeric current value as zero.
func incrementValue(current string, by float64) string {
	base, _ := numericValue(current)
	result := base + by
	return strconv.FormatFloat(result, 'f', -1, 64)
}
