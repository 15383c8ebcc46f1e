package cloud

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	testAppID     = "test-app-id"
	testAppKey    = "test-app-key"
	testAppSecret = "test-app-secret"
	testIoTToken  = "iot-token"
	testIoTID     = "iot-123"
)

// fakeCloud emulates the login host, the region gateway, the OA gateway and
// the API gateway on a single httptest server.
type fakeCloud struct {
	t   *testing.T
	srv *httptest.Server

	mu   sync.Mutex
	hits map[string]int

	loginCode      int
	regionCode     int
	omitAPIGateway bool
	vidSuccess     string
	sidFailures    int
	tokenFailures  int
	deviceCode     int

	loginPaths   []string
	loginBodies  []map[string]any
	loginHeaders []http.Header

	properties   map[string]any
	devices      []map[string]any
	products     []map[string]any
	lastParams   map[string]any
	lastAPIVer   string
	badSignature int
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	f := &fakeCloud{
		t:          t,
		hits:       make(map[string]int),
		regionCode: 200,
		vidSuccess: "true",
		deviceCode: 200,
		properties: map[string]any{
			"workstatus": map[string]any{"value": 0, "time": 1700000000000},
		},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCloud) host() string {
	return strings.TrimPrefix(f.srv.URL, "http://")
}

func (f *fakeCloud) config() Config {
	return Config{
		AppID:           testAppID,
		AppKey:          testAppKey,
		AppSecret:       testAppSecret,
		IntlBaseURL:     f.srv.URL,
		DomesticBaseURL: f.srv.URL + "/cn",
		RegionHost:      f.host(),
		Scheme:          "http",
		Timeout:         5 * time.Second,
	}
}

func (f *fakeCloud) session() *Session {
	return NewSession(f.config())
}

func (f *fakeCloud) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeCloud) set(fn func(f *fakeCloud)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeCloud) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	if strings.HasSuffix(path, loginPath) {
		f.hits[loginPath]++
		f.handleLogin(w, r)
		return
	}
	f.hits[path]++

	if !f.verifySignature(r) {
		f.badSignature++
		w.Header().Set("X-Ca-Error-Message", "Invalid Signature")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch path {
	case visitorIDPath:
		f.handleVisitorID(w)
		return
	case sessionIDPath:
		f.handleSessionID(w, r)
		return
	}

	var env struct {
		Request requestMeta    `json:"request"`
		Params  map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.lastParams = env.Params
	f.lastAPIVer = env.Request.APIVer

	switch path {
	case regionPath:
		data := map[string]any{"oaApiGatewayEndpoint": f.host()}
		if !f.omitAPIGateway {
			data["apiGatewayEndpoint"] = f.host()
		}
		writeJSON(w, map[string]any{"code": f.regionCode, "message": "region", "data": data})
	case tokenExchange:
		if f.tokenFailures > 0 {
			f.tokenFailures--
			writeJSON(w, map[string]any{"code": 2401, "message": fmt.Sprintf("token attempt %d", f.hits[path])})
			return
		}
		writeJSON(w, map[string]any{"code": 200, "data": map[string]any{"iotToken": testIoTToken}})
	default:
		f.handleDevice(w, path, env.Request.IoTToken)
	}
}

func (f *fakeCloud) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.loginPaths = append(f.loginPaths, r.URL.Path)
	f.loginBodies = append(f.loginBodies, body)
	f.loginHeaders = append(f.loginHeaders, r.Header.Clone())

	if f.loginCode != 0 {
		writeJSON(w, map[string]any{"code": f.loginCode, "msg": "bad credentials"})
		return
	}
	writeJSON(w, map[string]any{
		"code": 0,
		"data": map[string]any{"identityid": "identity-1", "token": "auth-token"},
	})
}

func (f *fakeCloud) handleVisitorID(w http.ResponseWriter) {
	writeJSON(w, map[string]any{
		"success": f.vidSuccess,
		"data":    map[string]any{"successful": "true", "vid": "vid-1"},
	})
}

func (f *fakeCloud) handleSessionID(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Vid") != "vid-1" {
		writeJSON(w, map[string]any{"success": "false", "errorMsg": "missing vid"})
		return
	}
	if f.sidFailures > 0 {
		f.sidFailures--
		writeJSON(w, map[string]any{
			"success": "true",
			"data":    map[string]any{"successful": "false", "message": "sid rejected"},
		})
		return
	}
	writeJSON(w, map[string]any{
		"success": true,
		"data": map[string]any{
			"successful": true,
			"data":       map[string]any{"loginSuccessResult": map[string]any{"sid": "sid-1"}},
		},
	})
}

func (f *fakeCloud) handleDevice(w http.ResponseWriter, path, token string) {
	if token != testIoTToken {
		writeJSON(w, map[string]any{"code": 401, "message": "iotToken invalid"})
		return
	}
	if f.deviceCode != 200 {
		writeJSON(w, map[string]any{"code": f.deviceCode, "message": "device error"})
		return
	}

	switch path {
	case propertiesGetPath:
		writeJSON(w, map[string]any{"code": 200, "data": f.properties})
	case propertiesSetPath, serviceInvokePath:
		writeJSON(w, map[string]any{"code": 200})
	case bindingListPath:
		writeJSON(w, map[string]any{"code": 200, "data": map[string]any{"data": f.devices, "total": len(f.devices)}})
	case productListPath:
		writeJSON(w, map[string]any{"code": 200, "data": f.products})
	default:
		writeJSON(w, map[string]any{"code": 404, "message": "unknown api " + path})
	}
}

func (f *fakeCloud) verifySignature(r *http.Request) bool {
	headers := make(map[string]string)
	for _, name := range strings.Split(r.Header.Get("x-ca-signature-headers"), ",") {
		headers[name] = r.Header.Get(name)
	}
	if headers["x-ca-key"] != testAppKey {
		return false
	}
	sts := stringToSign(r.Method, r.Header.Get("Accept"), r.Header.Get("Content-MD5"),
		r.Header.Get("Content-Type"), r.Header.Get("Date"), headers, r.URL.Path)
	return hmacSignature(testAppSecret, sts) == r.Header.Get("x-ca-signature")
}
