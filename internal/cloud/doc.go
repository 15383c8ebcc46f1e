// Package cloud speaks the PetMarvel vendor cloud protocol.
//
// A Session owns the five-step handshake that turns account credentials
// into an iot token:
//
//	login            POST {regional host}/app/v1/auth/login      identity id + auth token
//	region discovery gateway /living/account/region/get          OA and API gateway hosts
//	visitor id       raw POST /api/prd/connect.json (OA gateway)  vid
//	session id       raw POST /api/prd/loginbyoauth.json          sid
//	token exchange   gateway /account/createSessionByAuthCode     iot token
//
// Session state is all-or-nothing: either every artifact is populated and
// the session is connected, or nothing is. An authentication failure on the
// first handshake restarts the whole handshake once.
//
// Device calls (property get/set, service invoke, device and product
// listing) go through the signed gateway envelope and require a connected
// session.
//
// Errors are classified with sentinels so callers can use errors.Is:
//
//	ErrAuth        credentials rejected or session expired
//	ErrConnection  transport failure or non-success business code
//	ErrDecode      well-formed response missing an expected field
package cloud
