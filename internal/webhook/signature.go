package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"
)

// SignatureHeader carries the provider's request signature
const SignatureHeader = "X-Twilio-Signature"

// Sign computes the provider signature of a callback: the base64 HMAC-SHA1 of
// the callback URL followed by every parameter name and value in sorted name order.
func Sign(authToken, callbackURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(callbackURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the expected signature in constant time
func VerifySignature(authToken, callbackURL string, params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	expected := Sign(authToken, callbackURL, params)
	return hmac.Equal([]byte(expected), []byte(signature))
}
