package cloud

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestLoginSign(t *testing.T) {
	got := loginSign("b0baae0630f444b0811ea3c2eb212171", "/app/v1/auth/login", "1700000000")
	if got != "a037a2e54c5967230fb157ddc1bf78d1" {
		t.Errorf("loginSign() = %q", got)
	}
}

func TestStringToSign_SortsHeaders(t *testing.T) {
	got := stringToSign("post", "A", "M", "C", "D", map[string]string{
		"x-ca-nonce": "n",
		"x-ca-key":   "k",
	}, "/p")
	want := "POST\nA\nM\nC\nD\nx-ca-key:k\nx-ca-nonce:n\n/p"
	if got != want {
		t.Errorf("stringToSign() = %q, want %q", got, want)
	}
}

func TestHMACSignature_KnownVector(t *testing.T) {
	sts := "POST\napplication/json; charset=utf-8\nMD5\napplication/octet-stream; charset=utf-8\nDATE\n" +
		"x-ca-key:34280983\nx-ca-nonce:n-1\n/thing/properties/get"
	got := hmacSignature("d342fca55b41d9b96490bda0c9c703b3", sts)
	if got != "qGBOWqrI2rTFmwr6rK53SO6NFq0OyQ269cz9YIQLdvY=" {
		t.Errorf("hmacSignature() = %q", got)
	}
}

func TestSigner_SetsHeaders(t *testing.T) {
	s := signer{
		appKey:    "key",
		appSecret: "secret",
		now:       func() time.Time { return time.Unix(1700000000, 0) },
		nonce:     func() string { return "nonce-1" },
	}
	req, _ := http.NewRequest(http.MethodPost, "https://gw.example/thing/properties/get", nil)
	s.sign(req, []byte(`{}`))

	checks := map[string]string{
		"x-ca-key":               "key",
		"x-ca-nonce":             "nonce-1",
		"x-ca-timestamp":         "1700000000000",
		"x-ca-signature-method":  gatewaySignatureMethod,
		"x-ca-signature-headers": "x-ca-key,x-ca-nonce,x-ca-signature-method,x-ca-timestamp",
		"Content-MD5":            "mZFLkyvTelC5g8XnyQrpOw==",
		"Date":                   "Tue, 14 Nov 2023 22:13:20 GMT",
	}
	for h, want := range checks {
		if got := req.Header.Get(h); got != want {
			t.Errorf("header %s = %q, want %q", h, got, want)
		}
	}
	if !strings.HasSuffix(req.Header.Get("x-ca-signature"), "=") {
		t.Errorf("x-ca-signature = %q, want base64", req.Header.Get("x-ca-signature"))
	}
}
