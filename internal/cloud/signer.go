package cloud

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // vendor protocol mandates MD5
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	gatewayAccept          = "application/json; charset=utf-8"
	gatewayContentType     = "application/octet-stream; charset=utf-8"
	gatewaySignatureMethod = "HmacSHA256"
)

// loginSign returns the md5 signature the app login endpoint expects.
func loginSign(appID, path, ts string) string {
	sum := md5.Sum([]byte(appID + path + ts)) //nolint:gosec // vendor protocol
	return hex.EncodeToString(sum[:])
}

// signer applies the API gateway HMAC-SHA256 request signature.
type signer struct {
	appKey    string
	appSecret string
	now       func() time.Time
	nonce     func() string
}

// sign sets the gateway authentication headers on req.
// body must be the exact bytes that will be sent.
func (s signer) sign(req *http.Request, body []byte) {
	sum := md5.Sum(body) //nolint:gosec // Content-MD5 is defined as MD5
	contentMD5 := base64.StdEncoding.EncodeToString(sum[:])
	now := s.now()

	req.Header.Set("Accept", gatewayAccept)
	req.Header.Set("Content-Type", gatewayContentType)
	req.Header.Set("Content-MD5", contentMD5)
	req.Header.Set("Date", now.UTC().Format(http.TimeFormat))

	caHeaders := map[string]string{
		"x-ca-key":              s.appKey,
		"x-ca-nonce":            s.nonce(),
		"x-ca-signature-method": gatewaySignatureMethod,
		"x-ca-timestamp":        strconv.FormatInt(now.UnixMilli(), 10),
	}
	names := make([]string, 0, len(caHeaders))
	for k, v := range caHeaders {
		req.Header.Set(k, v)
		names = append(names, k)
	}
	sort.Strings(names)
	req.Header.Set("x-ca-signature-headers", strings.Join(names, ","))

	sts := stringToSign(req.Method, gatewayAccept, contentMD5, gatewayContentType,
		req.Header.Get("Date"), caHeaders, req.URL.Path)
	req.Header.Set("x-ca-signature", hmacSignature(s.appSecret, sts))
}

// stringToSign builds the canonical request string:
//
//	METHOD\nAccept\nContent-MD5\nContent-Type\nDate\n{k:v\n sorted}path
func stringToSign(method, accept, contentMD5, contentType, date string, headers map[string]string, path string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('\n')
	b.WriteString(accept)
	b.WriteByte('\n')
	b.WriteString(contentMD5)
	b.WriteByte('\n')
	b.WriteString(contentType)
	b.WriteByte('\n')
	b.WriteString(date)
	b.WriteByte('\n')

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(headers[k])
		b.WriteByte('\n')
	}
	b.WriteString(path)
	return b.String()
}

func hmacSignature(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
