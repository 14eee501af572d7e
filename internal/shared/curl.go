// Utilities for parsing cURL commands copied from browser DevTools.
//
// The YouTube Music catalog proxy authenticates with browser request
// headers; this extracts them for the proxy's ingest endpoint.
package shared

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// CurlHeaders holds the request headers and cookie string lifted from a
// browser-exported cURL command.
type CurlHeaders struct {
	Headers map[string]string
	Cookie  string
}

var (
	curlHeaderFlag = regexp.MustCompile(`-H\s+'([^']+)'|-H\s+"([^"]+)"`)
	curlCookieFlag = regexp.MustCompile(`-b\s+'([^']+)'|-b\s+"([^"]+)"`)
)

// ParseCurlFile reads a file containing a cURL command and extracts headers.
func ParseCurlFile(path string) (*CurlHeaders, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curl file: %w", err)
	}

	return ParseCurlCommand(content)
}

// ParseCurlCommand extracts the -H header values and the -b cookie from a
// cURL command. A "Cookie:" header is folded into the cookie field rather
// than the header map; line continuations are flattened first.
func ParseCurlCommand(data []byte) (*CurlHeaders, error) {
	cmd := strings.ReplaceAll(string(data), "\\\n", " ")
	cmd = strings.ReplaceAll(cmd, "\\", "")

	parsed := &CurlHeaders{Headers: make(map[string]string)}

	for _, match := range curlHeaderFlag.FindAllStringSubmatch(cmd, -1) {
		key, value, ok := splitHeaderLine(firstSubmatch(match))
		if !ok {
			continue
		}
		if strings.EqualFold(key, "cookie") {
			if parsed.Cookie == "" {
				parsed.Cookie = value
			}
			continue
		}
		parsed.Headers[key] = value
	}

	// An explicit -b flag wins over a Cookie: header.
	if match := curlCookieFlag.FindStringSubmatch(cmd); match != nil {
		parsed.Cookie = firstSubmatch(match)
	}

	if len(parsed.Headers) == 0 && parsed.Cookie == "" {
		return nil, fmt.Errorf("no headers found in curl command")
	}

	return parsed, nil
}

func firstSubmatch(match []string) string {
	for _, group := range match[1:] {
		if group != "" {
			return group
		}
	}
	return ""
}

func splitHeaderLine(line string) (key, value string, ok bool) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

// ToHeadersRaw renders the headers as newline-separated "Key: Value" pairs,
// the format ytmusicapi accepts as headers_raw.
func (c *CurlHeaders) ToHeadersRaw() string {
	lines := make([]string, 0, len(c.Headers)+1)
	for key, value := range c.Headers {
		lines = append(lines, fmt.Sprintf("%s: %s", key, value))
	}
	if c.Cookie != "" {
		lines = append(lines, fmt.Sprintf("cookie: %s", c.Cookie))
	}

	return strings.Join(lines, "\n")
}

// IngestPayload builds the JSON body expected by the YouTube Music proxy's
// header ingest endpoint.
func (c *CurlHeaders) IngestPayload(sourceURL string) map[string]any {
	headers := make(map[string]string, len(c.Headers)+1)
	for k, v := range c.Headers {
		headers[k] = v
	}
	if c.Cookie != "" {
		headers["cookie"] = c.Cookie
	}

	return map[string]any{
		"url":     sourceURL,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"headers": headers,
	}
}
