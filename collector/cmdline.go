package collector

import (
	"os"
	"strings"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// CmdLineToYAML reads the kernel command line (or the given file when not
// empty) and converts it to YAML. Dotted options nest, so
// "sarchura.install.device=/dev/vda" becomes
// "sarchura: {install: {device: /dev/vda}}". Options without a value are
// mapped to true. Values are split with shlex so quoted values keep their
// spaces.
func CmdLineToYAML(file string) ([]byte, error) {
	if file == "" {
		file = "/proc/cmdline"
	}

	dat, err := os.ReadFile(file)
	if err != nil {
		return []byte{}, err
	}

	return yaml.Marshal(cmdLineValues(string(dat)))
}

func cmdLineValues(cmdline string) map[string]interface{} {
	result := map[string]interface{}{}

	fields, err := shlex.Split(strings.TrimSpace(cmdline))
	if err != nil {
		// unbalanced quotes, take the raw fields
		fields = strings.Fields(cmdline)
	}

	for _, field := range fields {
		var value interface{} = true
		key := field
		if idx := strings.Index(field, "="); idx >= 0 {
			key = field[:idx]
			value = strings.Trim(field[idx+1:], `"`)
		}
		if key == "" {
			continue
		}
		setDotted(result, strings.Split(key, "."), value)
	}

	return result
}

// setDotted walks the key path creating intermediate maps, the last
// value wins. A scalar in the middle of the path is replaced by a map.
func setDotted(m map[string]interface{}, path []string, value interface{}) {
	if len(path) == 1 {
		m[path[0]] = value
		return
	}

	child, ok := m[path[0]].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
		m[path[0]] = child
	}
	setDotted(child, path[1:], value)
}
