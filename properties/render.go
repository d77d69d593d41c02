package properties

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sardine-ai/go-config-advisor/model"
)

// RenderProperties writes the Spring keys of set as a .properties document,
// grouped by top-level namespace. postgres.* and jvm.* keys are skipped.
func RenderProperties(set *model.PropertySet, header string) []byte {
	var buf bytes.Buffer
	for _, line := range strings.Split(strings.TrimSpace(header), "\n") {
		if line != "" {
			fmt.Fprintf(&buf, "# %s\n", line)
		}
	}

	group := ""
	for _, key := range set.Keys() {
		if !isSpringKey(key) {
			continue
		}
		top, _, _ := strings.Cut(key, ".")
		if top != group {
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			group = top
		}
		fmt.Fprintf(&buf, "%s=%s\n", escapeKey(key), escapeValue(set.Value(key)))
	}
	return buf.Bytes()
}

func isSpringKey(key string) bool {
	return !strings.HasPrefix(key, PostgresPrefix) && !strings.HasPrefix(key, JVMPrefix)
}

func escapeKey(key string) string {
	r := strings.NewReplacer(`\`, `\\`, "=", `\=`, ":", `\:`, " ", `\ `)
	return r.Replace(key)
}

func escapeValue(value string) string {
	value = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\t", `\t`).Replace(value)
	if strings.HasPrefix(value, " ") {
		value = `\` + value
	}
	return value
}

type yamlTree struct {
	value    *string
	children map[string]*yamlTree
}

// RenderYAML writes the Spring keys of set as a nested application.yml.
func RenderYAML(set *model.PropertySet) ([]byte, error) {
	root := &yamlTree{children: map[string]*yamlTree{}}
	for _, key := range set.Keys() {
		if !isSpringKey(key) {
			continue
		}
		node := root
		for _, segment := range strings.Split(key, ".") {
			child, ok := node.children[segment]
			if !ok {
				child = &yamlTree{children: map[string]*yamlTree{}}
				node.children[segment] = child
			}
			node = child
		}
		value := set.Value(key)
		node.value = &value
	}
	return yaml.Marshal(root.toMap())
}

func (t *yamlTree) toMap() map[string]interface{} {
	out := make(map[string]interface{}, len(t.children))
	for name, child := range t.children {
		switch {
		case len(child.children) == 0:
			out[name] = typedScalar(*child.value)
		case child.value == nil:
			out[name] = child.toMap()
		default:
			// A key that is both a leaf and a parent cannot nest; keep the
			// descendants flattened next to it.
			out[name] = typedScalar(*child.value)
			for sub, v := range child.flatten("") {
				out[name+"."+sub] = v
			}
		}
	}
	return out
}

func (t *yamlTree) flatten(prefix string) map[string]interface{} {
	out := map[string]interface{}{}
	for name, child := range t.children {
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		if child.value != nil {
			out[key] = typedScalar(*child.value)
		}
		for k, v := range child.flatten(key) {
			out[k] = v
		}
	}
	return out
}

func typedScalar(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(i, 10) == s {
		return i
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	return s
}

var plainConfValue = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// RenderPostgresConf writes the postgres.* keys of set as postgresql.conf lines.
func RenderPostgresConf(set *model.PropertySet, header string) []byte {
	var buf bytes.Buffer
	for _, line := range strings.Split(strings.TrimSpace(header), "\n") {
		if line != "" {
			fmt.Fprintf(&buf, "# %s\n", line)
		}
	}
	for _, key := range set.Keys() {
		if !strings.HasPrefix(key, PostgresPrefix) {
			continue
		}
		value := set.Value(key)
		if !plainConfValue.MatchString(value) {
			value = "'" + strings.ReplaceAll(value, "'", "''") + "'"
		}
		fmt.Fprintf(&buf, "%s = %s\n", GUCName(key), value)
	}
	return buf.Bytes()
}

// RenderJavaOpts renders the jvm.* keys of set as a single JAVA_OPTS value.
func RenderJavaOpts(set *model.PropertySet) string {
	var flags []string
	add := func(key, format string) {
		if v := set.Value(key); v != "" {
			flags = append(flags, fmt.Sprintf(format, v))
		}
	}
	add(KeyXms, "-Xms%s")
	add(KeyXmx, "-Xmx%s")
	add(KeyInitRAMPercentage, "-XX:InitialRAMPercentage=%s")
	add(KeyMaxRAMPercentage, "-XX:MaxRAMPercentage=%s")
	add(KeyMaxMetaspaceSize, "-XX:MaxMetaspaceSize=%s")
	add(KeyXss, "-Xss%s")
	add(KeyGC, "-XX:+Use%s")
	switch set.Value(KeyUseContainerSupport) {
	case "true":
		flags = append(flags, "-XX:+UseContainerSupport")
	case "false":
		flags = append(flags, "-XX:-UseContainerSupport")
	}
	return strings.Join(flags, " ")
}
