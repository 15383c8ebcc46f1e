package cloud

import (
	"context"
	"fmt"
	"strings"
)

const (
	productListPath   = "/thing/productInfo/getByAppKey"
	bindingListPath   = "/uc/listBindingByAccount"
	propertiesGetPath = "/thing/properties/get"
	propertiesSetPath = "/thing/properties/set"
	serviceInvokePath = "/thing/service/invoke"

	// LitterBoxCategory is the categoryKey of PetMarvel litter boxes.
	LitterBoxCategory = "CatLitter"
)

// authedCall performs an enveloped call with the session's iot token.
// A 401 business code drops the session so the next Connect re-handshakes.
func (s *Session) authedCall(ctx context.Context, path, apiVer string, params any) (gatewayResponse, error) {
	token, host, err := s.token()
	if err != nil {
		return gatewayResponse{}, err
	}

	resp, err := s.gw.call(ctx, host, path, apiVer, token, params)
	if err != nil {
		return gatewayResponse{}, err
	}
	switch resp.Code {
	case gatewayOK:
		return resp, nil
	case gatewayUnauthorized:
		s.log().Warn("iot token rejected, dropping session", "path", path)
		s.Disconnect()
		return resp, fmt.Errorf("%w: %s: %s", ErrAuth, path, resp.describe())
	default:
		return resp, fmt.Errorf("%w: %s: %s (code %d)", ErrConnection, path, resp.describe(), resp.Code)
	}
}

// ProductList returns the products released under the app key.
func (s *Session) ProductList(ctx context.Context) ([]Product, error) {
	resp, err := s.authedCall(ctx, productListPath, "1.1.7", map[string]any{
		"productStatusEnv": "release",
	})
	if err != nil {
		return nil, err
	}

	var products []Product
	if err := decodeData(productListPath, resp.Data, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// ListDevices returns one page of devices bound to the account.
//
// Parameters:
//   - pageNo: 1-based page number
//   - pageSize: Devices per page
func (s *Session) ListDevices(ctx context.Context, pageNo, pageSize int) ([]Device, error) {
	resp, err := s.authedCall(ctx, bindingListPath, "1.0.8", map[string]any{
		"pageSize":  pageSize,
		"thingType": "DEVICE",
		"nodeType":  "DEVICE",
		"pageNo":    pageNo,
	})
	if err != nil {
		return nil, err
	}

	var page struct {
		Data []Device `json:"data"`
	}
	if err := decodeData(bindingListPath, resp.Data, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// LitterBoxes returns the bound devices whose category is CatLitter.
func (s *Session) LitterBoxes(ctx context.Context) ([]Device, error) {
	devices, err := s.ListDevices(ctx, 1, 20)
	if err != nil {
		return nil, err
	}
	var out []Device
	for _, d := range devices {
		if strings.EqualFold(d.CategoryKey, LitterBoxCategory) {
			out = append(out, d)
		}
	}
	return out, nil
}

// GetProperties reads the full property map of a device.
func (s *Session) GetProperties(ctx context.Context, iotID string) (Properties, error) {
	resp, err := s.authedCall(ctx, propertiesGetPath, "1.0.4", map[string]any{
		"iotId": iotID,
	})
	if err != nil {
		return nil, err
	}

	var props Properties
	if err := decodeData(propertiesGetPath, resp.Data, &props); err != nil {
		return nil, err
	}
	return props, nil
}

// SetProperties writes property values to a device.
func (s *Session) SetProperties(ctx context.Context, iotID string, items map[string]any) error {
	_, err := s.authedCall(ctx, propertiesSetPath, "1.0.4", map[string]any{
		"items": items,
		"iotId": iotID,
	})
	return err
}

// InvokeService calls a thing-model service on a device.
func (s *Session) InvokeService(ctx context.Context, iotID, identifier string, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	_, err := s.authedCall(ctx, serviceInvokePath, "1.0.5", map[string]any{
		"args":       args,
		"identifier": identifier,
		"iotId":      iotID,
	})
	return err
}
