package postgres

import (
	"strings"

	"github.com/pkg/errors"
)

type connParam struct {
	key   string
	value string
}

// connParams is a parsed libpq key=value connection string.
type connParams []connParam

// parseConnParams parses key=value pairs. Values can be single quoted and
// contain backslash escapes, as written by pq.ParseURL.
func parseConnParams(s string) (connParams, error) {
	var params connParams
	r := []rune(s)
	i := 0
	skipSpace := func() {
		for i < len(r) && isSpace(r[i]) {
			i++
		}
	}
	for {
		skipSpace()
		if i >= len(r) {
			return params, nil
		}
		start := i
		for i < len(r) && r[i] != '=' && !isSpace(r[i]) {
			i++
		}
		key := string(r[start:i])
		skipSpace()
		if i >= len(r) || r[i] != '=' {
			return nil, errors.Errorf("missing value for %q in connection params", key)
		}
		i++
		skipSpace()

		var value []rune
		if i < len(r) && r[i] == '\'' {
			i++
			for {
				if i >= len(r) {
					return nil, errors.Errorf("unterminated quote for %q in connection params", key)
				}
				if r[i] == '\\' && i+1 < len(r) {
					value = append(value, r[i+1])
					i += 2
					continue
				}
				if r[i] == '\'' {
					i++
					break
				}
				value = append(value, r[i])
				i++
			}
		} else {
			for i < len(r) && !isSpace(r[i]) {
				if r[i] == '\\' && i+1 < len(r) {
					i++
				}
				value = append(value, r[i])
				i++
			}
		}
		params = append(params, connParam{key, string(value)})
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// get returns the last value of key.
func (p connParams) get(key string) (string, bool) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i].key == key {
			return p[i].value, true
		}
	}
	return "", false
}

func (p connParams) without(keys ...string) connParams {
	var result connParams
next:
	for _, kv := range p {
		for _, k := range keys {
			if kv.key == k {
				continue next
			}
		}
		result = append(result, kv)
	}
	return result
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// String formats the params for sql.Open. Values are only quoted when
// required.
func (p connParams) String() string {
	parts := make([]string, 0, len(p))
	for _, kv := range p {
		v := kv.value
		if v == "" || strings.ContainsAny(v, " \t\n\r'\\") {
			v = "'" + valueEscaper.Replace(v) + "'"
		}
		parts = append(parts, kv.key+"="+v)
	}
	return strings.Join(parts, " ")
}
