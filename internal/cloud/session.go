package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Vendor endpoints.
const (
	DefaultIntlBaseURL     = "https://app.api.ap.nyhx.vip"
	DefaultDomesticBaseURL = "https://app.api.nyhx.vip"
	DefaultRegionHost      = "cn-shanghai.api-iot.aliyuncs.com"

	loginPath       = "/app/v1/auth/login"
	regionPath      = "/living/account/region/get"
	visitorIDPath   = "/api/prd/connect.json"
	sessionIDPath   = "/api/prd/loginbyoauth.json"
	tokenExchange   = "/account/createSessionByAuthCode"
	appVersion      = "2.0.47"
	appUserAgent    = "okhttp/3.12.8"
	oauthPlatformID = 23
)

// Logger is the logging interface used by Session.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds vendor credentials and endpoint settings for a Session.
type Config struct {
	AppID     string
	AppKey    string
	AppSecret string
	Language  string

	// IntlBaseURL and DomesticBaseURL are the login hosts. Empty selects
	// the vendor defaults.
	IntlBaseURL     string
	DomesticBaseURL string

	// RegionHost is the gateway used for region discovery.
	RegionHost string

	// Scheme for gateway hosts. Defaults to https.
	Scheme string

	// HTTPClient defaults to a client with Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration

	// Now overrides time.Now for request signing.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.IntlBaseURL == "" {
		c.IntlBaseURL = DefaultIntlBaseURL
	}
	if c.DomesticBaseURL == "" {
		c.DomesticBaseURL = DefaultDomesticBaseURL
	}
	if c.RegionHost == "" {
		c.RegionHost = DefaultRegionHost
	}
	if c.Scheme == "" {
		c.Scheme = "https"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Session owns the vendor handshake and the resulting iot token.
//
// Thread Safety:
//   - Connect serialises handshakes; device calls may run concurrently.
type Session struct {
	cfg Config
	gw  *gateway

	// connectMu serialises handshakes.
	connectMu sync.Mutex

	mu    sync.RWMutex
	state sessionState

	phase      atomic.Int32
	handshakes atomic.Int64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewSession creates a disconnected Session.
//
// Parameters:
//   - cfg: Vendor credentials and endpoints; zero fields take defaults
//
// Returns:
//   - *Session: Ready for Connect
func NewSession(cfg Config) *Session {
	cfg.applyDefaults()
	return &Session{
		cfg: cfg,
		gw: &gateway{
			http:     cfg.HTTPClient,
			scheme:   cfg.Scheme,
			language: cfg.Language,
			signer: signer{
				appKey:    cfg.AppKey,
				appSecret: cfg.AppSecret,
				now:       cfg.Now,
				nonce:     uuid.NewString,
			},
		},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for handshake events.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	defer s.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

func (s *Session) log() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// Connected reports whether the session holds a valid iot token.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.connected
}

// Phase returns the current handshake phase.
func (s *Session) Phase() Phase {
	return Phase(s.phase.Load())
}

// Handshakes returns how many handshakes have been started.
func (s *Session) Handshakes() int64 {
	return s.handshakes.Load()
}

// IdentityID returns the vendor identity id of the logged-in account,
// or "" when disconnected.
func (s *Session) IdentityID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.identityID
}

// Disconnect clears all session artifacts. The next Connect performs a
// full handshake.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.state = sessionState{}
	s.mu.Unlock()
	s.phase.Store(int32(PhaseDisconnected))
}

// Connect performs the login handshake unless the session is already
// connected.
//
// If the first handshake fails with ErrAuth after the login step it is
// retried once from scratch; the second attempt's error is returned. A
// rejected login or an unsupported country is returned without a retry.
//
// Parameters:
//   - ctx: Bounds the whole handshake
//   - creds: Account credentials
//
// Returns:
//   - error: Wraps ErrAuth or ErrConnection; nil when connected
func (s *Session) Connect(ctx context.Context, creds Credentials) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	if s.Connected() {
		return nil
	}

	err := s.handshake(ctx, creds)
	if errors.Is(err, ErrAuth) && !isFinal(err) {
		s.log().Warn("cloud handshake rejected, retrying once", "error", err)
		err = s.handshake(ctx, creds)
	}
	if err != nil {
		return err
	}

	s.log().Info("cloud session established", "account", creds.Account)
	return nil
}

// finalError marks a handshake failure that a second attempt cannot fix.
type finalError struct{ err error }

func (e finalError) Error() string { return e.err.Error() }
func (e finalError) Unwrap() error { return e.err }

func isFinal(err error) bool {
	var f finalError
	return errors.As(err, &f)
}

// handshake runs all five steps and commits the result atomically.
func (s *Session) handshake(ctx context.Context, creds Credentials) (err error) {
	s.handshakes.Add(1)
	s.Disconnect()

	var st sessionState
	defer func() {
		if err != nil {
			s.Disconnect()
		}
	}()

	s.phase.Store(int32(PhaseLoggingIn))
	if err = s.login(ctx, creds, &st); err != nil {
		if errors.Is(err, ErrAuth) {
			return finalError{err}
		}
		return err
	}
	if err = s.resolveRegion(ctx, &st); err != nil {
		return err
	}
	s.phase.Store(int32(PhaseRegionResolved))

	if err = s.obtainVisitorID(ctx, &st); err != nil {
		return err
	}
	s.phase.Store(int32(PhaseVisitorIDObtained))

	if err = s.obtainSessionID(ctx, &st); err != nil {
		return err
	}
	s.phase.Store(int32(PhaseSessionIDObtained))

	if err = s.exchangeToken(ctx, &st); err != nil {
		return err
	}

	st.connected = true
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.phase.Store(int32(PhaseConnected))
	return nil
}

type loginRequest struct {
	Account     string `json:"account"`
	AccountType int    `json:"account_type"`
	Area        string `json:"area"`
	ClientID    string `json:"clientid"`
	Password    string `json:"password"`
	Brand       string `json:"brand"`
}

type loginResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		IdentityID string `json:"identityid"`
		Token      string `json:"token"`
	} `json:"data"`
}

func (s *Session) login(ctx context.Context, creds Credentials, st *sessionState) error {
	area, err := AreaCode(creds.Country)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}

	base, accountType := s.cfg.IntlBaseURL, 1
	if IsDomestic(area) {
		base, accountType = s.cfg.DomesticBaseURL, 0
	}

	body, err := json.Marshal(loginRequest{
		Account:     creds.Account,
		AccountType: accountType,
		Area:        area,
		Password:    creds.Password,
	})
	if err != nil {
		return fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+loginPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building login request: %w", ErrConnection, err)
	}
	ts := strconv.FormatInt(s.cfg.Now().Unix(), 10)
	req.Header.Set("content-type", "application/json; charset=UTF-8")
	req.Header.Set("appid", s.cfg.AppID)
	req.Header.Set("ts", ts)
	req.Header.Set("sign", loginSign(s.cfg.AppID, loginPath, ts))
	req.Header.Set("version", appVersion)
	req.Header.Set("user-agent", appUserAgent)

	var resp loginResponse
	if err := doJSON(s.cfg.HTTPClient, req, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return fmt.Errorf("%w: invalid username or password (code %d)", ErrAuth, resp.Code)
	}
	switch {
	case resp.Data == nil:
		return fmt.Errorf("%w: %w: login: missing data", ErrConnection, ErrDecode)
	case resp.Data.IdentityID == "":
		return fmt.Errorf("%w: %w: login: missing data.identityid", ErrConnection, ErrDecode)
	case resp.Data.Token == "":
		return fmt.Errorf("%w: %w: login: missing data.token", ErrConnection, ErrDecode)
	}

	st.identityID = resp.Data.IdentityID
	st.authToken = resp.Data.Token
	return nil
}

func (s *Session) resolveRegion(ctx context.Context, st *sessionState) error {
	resp, err := s.gw.call(ctx, s.cfg.RegionHost, regionPath, "1.0.2", "", map[string]any{
		"authCode": st.authToken,
		"type":     "THIRD_AUTHCODE",
	})
	if err != nil {
		return err
	}
	if resp.Code != gatewayOK {
		return fmt.Errorf("%w: loading region data: %s (code %d)", ErrConnection, resp.describe(), resp.Code)
	}

	var data struct {
		OAAPIGatewayEndpoint string `json:"oaApiGatewayEndpoint"`
		APIGatewayEndpoint   string `json:"apiGatewayEndpoint"`
	}
	if err := decodeData(regionPath, resp.Data, &data); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if data.OAAPIGatewayEndpoint == "" {
		return fmt.Errorf("%w: %w: region: missing data.oaApiGatewayEndpoint", ErrConnection, ErrDecode)
	}
	if data.APIGatewayEndpoint == "" {
		return fmt.Errorf("%w: %w: region: missing data.apiGatewayEndpoint", ErrConnection, ErrDecode)
	}

	st.oaGateway = data.OAAPIGatewayEndpoint
	st.apiGateway = data.APIGatewayEndpoint
	return nil
}

// oaResponse is the two-level success shape of the OA gateway.
type oaResponse struct {
	Success  truthy `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	Data     *struct {
		Successful truthy `json:"successful"`
		Message    string `json:"message"`
		Vid        string `json:"vid"`
		Data       *struct {
			LoginSuccessResult *struct {
				Sid string `json:"sid"`
			} `json:"loginSuccessResult"`
		} `json:"data"`
	} `json:"data"`
}

func (s *Session) obtainVisitorID(ctx context.Context, st *sessionState) error {
	payload := map[string]any{
		"request": map[string]any{
			"context": map[string]any{"appKey": s.cfg.AppKey},
			"config":  map[string]any{"version": 0, "lastModify": 0},
			"device":  map[string]any{},
		},
	}

	var resp oaResponse
	if err := s.gw.raw(ctx, st.oaGateway, visitorIDPath, nil, payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: getting vid: %s", ErrConnection, resp.ErrorMsg)
	}
	if resp.Data == nil {
		return fmt.Errorf("%w: %w: vid: missing data", ErrConnection, ErrDecode)
	}
	if !resp.Data.Successful {
		return fmt.Errorf("%w: getting vid: %s", ErrConnection, resp.Data.Message)
	}
	if resp.Data.Vid == "" {
		return fmt.Errorf("%w: %w: vid: missing data.vid", ErrConnection, ErrDecode)
	}

	st.vid = resp.Data.Vid
	return nil
}

func (s *Session) obtainSessionID(ctx context.Context, st *sessionState) error {
	payload := map[string]any{
		"loginByOauthRequest": map[string]any{
			"authCode":        st.authToken,
			"oauthPlateform":  oauthPlatformID,
			"oauthAppKey":     s.cfg.AppKey,
			"riskControlInfo": map[string]any{},
		},
	}

	var resp oaResponse
	if err := s.gw.raw(ctx, st.oaGateway, sessionIDPath, map[string]string{"Vid": st.vid}, payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: getting sid: %s", ErrAuth, resp.ErrorMsg)
	}
	if resp.Data == nil {
		return fmt.Errorf("%w: %w: sid: missing data", ErrConnection, ErrDecode)
	}
	if !resp.Data.Successful {
		return fmt.Errorf("%w: getting sid: %s", ErrAuth, resp.Data.Message)
	}
	switch {
	case resp.Data.Data == nil:
		return fmt.Errorf("%w: %w: sid: missing data.data", ErrConnection, ErrDecode)
	case resp.Data.Data.LoginSuccessResult == nil:
		return fmt.Errorf("%w: %w: sid: missing data.data.loginSuccessResult", ErrConnection, ErrDecode)
	case resp.Data.Data.LoginSuccessResult.Sid == "":
		return fmt.Errorf("%w: %w: sid: missing data.data.loginSuccessResult.sid", ErrConnection, ErrDecode)
	}

	st.sid = resp.Data.Data.LoginSuccessResult.Sid
	return nil
}

func (s *Session) exchangeToken(ctx context.Context, st *sessionState) error {
	resp, err := s.gw.call(ctx, st.apiGateway, tokenExchange, "1.0.4", "", map[string]any{
		"request": map[string]any{
			"authCode":    st.sid,
			"accountType": "OA_SESSION",
			"appKey":      s.cfg.AppKey,
		},
	})
	if err != nil {
		return err
	}
	if resp.Code != gatewayOK {
		return fmt.Errorf("%w: getting iot token: %s (code %d)", ErrAuth, resp.describe(), resp.Code)
	}

	var data struct {
		IoTToken string `json:"iotToken"`
	}
	if err := decodeData(tokenExchange, resp.Data, &data); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if data.IoTToken == "" {
		return fmt.Errorf("%w: %w: token: missing data.iotToken", ErrConnection, ErrDecode)
	}

	st.iotToken = data.IoTToken
	return nil
}

// token returns the iot token and API gateway, or ErrNotConnected.
func (s *Session) token() (token, host string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.connected {
		return "", "", ErrNotConnected
	}
	return s.state.iotToken, s.state.apiGateway, nil
}
