package properties

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/sardine-ai/go-config-advisor/model"
)

const (
	KeyXmx                 = "jvm.xmx"
	KeyXms                 = "jvm.xms"
	KeyXss                 = "jvm.xss"
	KeyMaxRAMPercentage    = "jvm.max-ram-percentage"
	KeyInitRAMPercentage   = "jvm.initial-ram-percentage"
	KeyMaxMetaspaceSize    = "jvm.max-metaspace-size"
	KeyGC                  = "jvm.gc"
	KeyUseContainerSupport = "jvm.use-container-support"
)

var jvmSizeFlags = map[string]string{
	"-Xmx": KeyXmx,
	"-Xms": KeyXms,
	"-Xss": KeyXss,
}

var jvmValueFlags = map[string]string{
	"-XX:MaxRAMPercentage=":     KeyMaxRAMPercentage,
	"-XX:InitialRAMPercentage=": KeyInitRAMPercentage,
	"-XX:MaxMetaspaceSize=":     KeyMaxMetaspaceSize,
}

// ParseJVMOptions extracts heap and GC flags from free-form text such as a
// jvm.options file, a JAVA_OPTS assignment or a Dockerfile ENTRYPOINT.
func ParseJVMOptions(name string, data []byte) (*model.PropertySet, error) {
	set := model.NewPropertySet()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		origin := model.Origin{File: name, Line: lineNum}
		for _, token := range jvmTokens(line) {
			applyJVMFlag(set, token, origin)
		}
	}
	return set, scanner.Err()
}

func jvmTokens(line string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', ',', '[', ']', '\\':
			return ' '
		}
		return r
	}, line)

	fields := strings.Fields(cleaned)
	tokens := fields[:0]
	for _, f := range fields {
		// JAVA_OPTS=-Xmx2g
		if idx := strings.Index(f, "=-"); idx > 0 && !strings.HasPrefix(f, "-") {
			f = f[idx+1:]
		}
		if strings.HasPrefix(f, "-X") {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func applyJVMFlag(set *model.PropertySet, token string, origin model.Origin) {
	for flag, key := range jvmSizeFlags {
		if strings.HasPrefix(token, flag) && len(token) > len(flag) {
			set.Set(key, token[len(flag):], origin)
			return
		}
	}
	for flag, key := range jvmValueFlags {
		if strings.HasPrefix(token, flag) {
			set.Set(key, token[len(flag):], origin)
			return
		}
	}
	switch {
	case token == "-XX:+UseContainerSupport":
		set.Set(KeyUseContainerSupport, "true", origin)
	case token == "-XX:-UseContainerSupport":
		set.Set(KeyUseContainerSupport, "false", origin)
	case strings.HasPrefix(token, "-XX:+Use") && strings.HasSuffix(token, "GC"):
		set.Set(KeyGC, strings.TrimPrefix(token, "-XX:+Use"), origin)
	}
}
