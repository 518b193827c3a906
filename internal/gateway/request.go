// ABOUTME: URL building, query encoding and response body decoding for upstream calls
// ABOUTME: Arrays repeat their query key; nil values are dropped

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// buildURL joins endpoint onto baseURL and merges query. Absolute endpoints
// are used as given.
func buildURL(baseURL, endpoint string, query map[string]any) (string, error) {
	raw := endpoint
	if !isAbsolute(endpoint) {
		raw = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", raw, err)
	}
	if len(query) > 0 {
		values := u.Query()
		encodeQuery(values, query)
		u.RawQuery = values.Encode()
	}
	return u.String(), nil
}

func isAbsolute(endpoint string) bool {
	lower := strings.ToLower(endpoint)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// encodeQuery adds query into values. Slices add one entry per non-nil element.
func encodeQuery(values url.Values, query map[string]any) {
	for key, v := range query {
		if v == nil {
			continue
		}
		rv := reflect.ValueOf(v)
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
			for i := 0; i < rv.Len(); i++ {
				elem := rv.Index(i).Interface()
				if elem == nil {
					continue
				}
				values.Add(key, queryString(elem))
			}
			continue
		}
		values.Add(key, queryString(v))
	}
}

func queryString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	// Objects and nested arrays go upstream as JSON, never Go syntax.
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(encoded)
}

// decodeBody turns a response body into a JSON value, a string, or an empty object.
func decodeBody(contentType string, raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}
	}

	looksJSON := trimmed[0] == '{' || trimmed[0] == '['
	if strings.Contains(strings.ToLower(contentType), "json") || looksJSON {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

// encodeBody marshals a request body. Strings and byte slices are sent as-is.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		return data, nil
	}
}
