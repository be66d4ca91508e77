package stivale

import "strings"

// ParseCmdline splits a kernel command line into key/value pairs. "k=v"
// maps k to v and a bare "k" maps k to itself. Only the first '=' separates
// key from value.
func ParseCmdline(cmdline string) map[string]string {
	kv := make(map[string]string)
	for _, field := range strings.Fields(cmdline) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			value = key
		}
		if key == "" {
			continue
		}
		kv[key] = value
	}
	return kv
}
