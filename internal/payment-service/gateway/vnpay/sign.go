package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

func (c *Client) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(c.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// checkSignature compares a presented hex digest with the expected one in
// constant time, ignoring case.
func (c *Client) checkSignature(data, presented string) bool {
	if presented == "" {
		return false
	}
	want := c.sign(data)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(presented)))
}

// signData renders params as the canonical query string: keys sorted,
// empty values dropped, keys and values query-escaped.
func signData(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// pipeJoin is the field layout the merchant API signs.
func pipeJoin(fields ...string) string { return strings.Join(fields, "|") }
