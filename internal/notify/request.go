package notify

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// EscapeText percent-encodes text for use in a query string.
// Spaces become %20 rather than '+'.
func EscapeText(text string) string {
	return strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

// BuildRequestPath appends the escaped text to prefix and truncates the result
// to at most maxLen-1 bytes without splitting a percent escape.
func BuildRequestPath(prefix, text string, maxLen int) string {
	target := prefix + EscapeText(text)
	if maxLen <= 0 || len(target) < maxLen {
		return target
	}
	target = target[:maxLen-1]
	if i := strings.LastIndexByte(target, '%'); i >= len(target)-2 && i >= len(prefix) {
		target = target[:i]
	}
	return target
}

// ExpandPath fills the phone and api key placeholders of a path template.
func ExpandPath(template, phone, apiKey string) string {
	if strings.Count(template, "%s") != 2 {
		return template
	}
	return fmt.Sprintf(template, url.QueryEscape(phone), url.QueryEscape(apiKey))
}

// BuildRequest renders the HTTP/1.1 GET request for target.
func BuildRequest(host, target string) []byte {
	var b bytes.Buffer
	b.WriteString("GET ")
	b.WriteString(target)
	b.WriteString(" HTTP/1.1\r\n")
	b.WriteString("Host: ")
	b.WriteString(host)
	b.WriteString("\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("\r\n")
	return b.Bytes()
}

// ParseStatusLine finds the first "HTTP/" in chunk and parses the status code
// of "HTTP/<major>.<minor> <code>". found reports whether a status line marker
// was present; code is 0 if the line is malformed.
func ParseStatusLine(chunk []byte) (code int, found bool) {
	i := bytes.Index(chunk, []byte("HTTP/"))
	if i < 0 {
		return 0, false
	}
	rest := chunk[i+len("HTTP/"):]

	// major.minor
	j := 0
	for j < len(rest) && isDigit(rest[j]) {
		j++
	}
	if j == 0 || j >= len(rest) || rest[j] != '.' {
		return 0, true
	}
	j++
	k := j
	for j < len(rest) && isDigit(rest[j]) {
		j++
	}
	if j == k {
		return 0, true
	}

	// whitespace then the code
	for j < len(rest) && (rest[j] == ' ' || rest[j] == '\t') {
		j++
	}
	k = j
	for j < len(rest) && isDigit(rest[j]) {
		j++
	}
	code, err := strconv.Atoi(string(rest[k:j]))
	if err != nil {
		return 0, true
	}
	return code, true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
