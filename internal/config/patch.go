package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Patch applies a partial update to the on-disk TOML document at path,
// rewriting only the keys present in updates (table -> key -> literal TOML
// value text) while leaving comments, key ordering, blank lines, and every
// untouched table byte-identical. This backs POST /api/config (§4.9),
// restricted to the models/tools/agents tables per spec.md.
//
// No library in the example pack does format-preserving TOML edits (the
// original Rust implementation's own save() is a full-document rewrite via
// toml::to_string_pretty, which is NOT format-preserving) — this is a
// deliberate small hand-rolled line rewriter, justified in DESIGN.md.
func Patch(path string, updates map[string]map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	lines := splitLines(string(data))
	pending := make(map[string]map[string]bool, len(updates))
	for table, kv := range updates {
		pending[table] = make(map[string]bool, len(kv))
		for k := range kv {
			pending[table][k] = true
		}
	}

	currentTable := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isTableHeader(trimmed) {
			currentTable = tableName(trimmed)
			continue
		}
		kv, ok := updates[currentTable]
		if !ok {
			continue
		}
		key := keyOf(trimmed)
		if key == "" {
			continue
		}
		if val, ok := kv[key]; ok && pending[currentTable][key] {
			indent := leadingWhitespace(line)
			lines[i] = fmt.Sprintf("%s%s = %s", indent, key, val)
			delete(pending[currentTable], key)
		}
	}

	// Any keys not found in an existing table are appended to that table's
	// section (creating the section at EOF if it never existed).
	for table, kv := range pending {
		if len(kv) == 0 {
			continue
		}
		lines = appendMissingKeys(lines, table, kv, updates[table])
	}

	out := strings.Join(lines, "\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return os.WriteFile(path, []byte(out), 0o644)
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(s, "\n")
}

func isTableHeader(trimmed string) bool {
	return strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")
}

func tableName(trimmed string) string {
	name := strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
	name = strings.TrimPrefix(name, "[") // tolerate [[array-of-tables]]
	name = strings.TrimSuffix(name, "]")
	return strings.TrimSpace(name)
}

func leadingWhitespace(line string) string {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return line[:i]
}

// keyOf extracts the bare key name from a "key = value" line, or "" if the
// line isn't a simple key assignment (comments, blank lines, table headers).
func keyOf(trimmed string) string {
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ""
	}
	idx := strings.Index(trimmed, "=")
	if idx <= 0 {
		return ""
	}
	key := strings.TrimSpace(trimmed[:idx])
	key = strings.Trim(key, `"`)
	return key
}

func appendMissingKeys(lines []string, table string, pending map[string]bool, all map[string]string) []string {
	header := "[" + table + "]"
	insertAt := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == header {
			insertAt = i
			break
		}
	}
	var block []string
	if insertAt == -1 {
		block = append(block, "", header)
		insertAt = len(lines) - 1
	}
	// Collect keys in a stable order.
	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	for _, k := range keys {
		block = append(block, fmt.Sprintf("%s = %s", k, all[k]))
	}
	if len(block) == 0 {
		return lines
	}
	out := make([]string, 0, len(lines)+len(block))
	out = append(out, lines[:insertAt+1]...)
	if insertAt < len(lines)-1 || lines[insertAt] != header {
		// header already existed; insert right after it
	}
	out = append(out, block...)
	out = append(out, lines[insertAt+1:]...)
	return out
}

// QuoteString produces a TOML-literal string value for use as a Patch update value.
func QuoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// QuoteInt produces a TOML-literal integer value.
func QuoteInt(n int) string {
	return strconv.Itoa(n)
}

// QuoteBool produces a TOML-literal boolean value.
func QuoteBool(b bool) string {
	return strconv.FormatBool(b)
}
