package etrade

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// signer produces OAuth 1.0a HMAC-SHA1 Authorization headers (RFC 5849).
// E*TRADE validates signatures byte-for-byte, so encoding here follows the
// RFC 3986 unreserved set exactly.
type signer struct {
	consumerKey    string
	consumerSecret string
}

// percentEncode encodes per RFC 3986 §2.1: everything except unreserved
// characters. url.QueryEscape is not equivalent (it emits '+' for space).
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// signature computes the HMAC-SHA1 signature over the base string built from
// method, the request URL and the combined oauth + query parameters.
func (s signer) signature(method, rawURL string, params map[string]string, tokenSecret string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	// Collect query parameters and oauth parameters into one set.
	all := make(map[string]string, len(params)+4)
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			all[k] = vs[0]
		}
	}
	for k, v := range params {
		all[k] = v
	}

	pairs := make([]string, 0, len(all))
	for k, v := range all {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
	}
	sort.Strings(pairs)

	baseURL := u.Scheme + "://" + u.Host + u.EscapedPath()
	base := strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" +
		percentEncode(strings.Join(pairs, "&"))

	key := percentEncode(s.consumerSecret) + "&" + percentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// header builds the full OAuth Authorization header value for a request.
// extra carries flow-specific parameters (oauth_callback, oauth_verifier).
func (s signer) header(method, rawURL, token, tokenSecret string, extra map[string]string) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", err
	}

	params := map[string]string{
		"oauth_consumer_key":     s.consumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        fmt.Sprintf("%d", time.Now().Unix()),
		"oauth_version":          "1.0",
	}
	if token != "" {
		params["oauth_token"] = token
	}
	for k, v := range extra {
		params[k] = v
	}

	sig, err := s.signature(method, rawURL, params, tokenSecret)
	if err != nil {
		return "", err
	}
	params["oauth_signature"] = sig

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", percentEncode(k), percentEncode(params[k])))
	}
	return "OAuth " + strings.Join(parts, ", "), nil
}

func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
