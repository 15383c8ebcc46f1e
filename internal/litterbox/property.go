package litterbox

import "fmt"

// Property is a writable device property.
type Property string

const (
	AutoClean     Property = "AutoClean"
	DeepClean     Property = "DeepClean"
	SmallCatMode  Property = "SmallCatMode"
	LightSwitch   Property = "LightSwitch"
	DeviceControl Property = "DeviceControl"
)

// DeviceControl is a command and has no backing snapshot field.
var propertySetters = map[Property]func(*Snapshot, int){
	AutoClean:     func(s *Snapshot, v int) { s.AutoClean = v == 1 },
	DeepClean:     func(s *Snapshot, v int) { s.DeepClean = v == 1 },
	SmallCatMode:  func(s *Snapshot, v int) { s.SmallCatMode = v == 1 },
	LightSwitch:   func(s *Snapshot, v int) { s.LightSwitch = v == 1 },
	DeviceControl: func(*Snapshot, int) {},
}

// ParseProperty validates a property key.
func ParseProperty(key string) (Property, error) {
	p := Property(key)
	if _, ok := propertySetters[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProperty, key)
	}
	return p, nil
}

// IsSwitch reports whether the property is an on/off setting.
func (p Property) IsSwitch() bool {
	return p != DeviceControl && propertySetters[p] != nil
}

func (p Property) apply(s *Snapshot, value int) {
	if set := propertySetters[p]; set != nil {
		set(s, value)
	}
}

// Service is a one-shot device action.
type Service string

const (
	ServiceClean Service = "clean"
	ServiceLevel Service = "level"
	ServiceDump  Service = "dump"
)

var serviceCodes = map[Service]int{
	ServiceClean: 0,
	ServiceLevel: 1,
	ServiceDump:  2,
}

// ParseService validates a service name and returns its DeviceControl code.
func ParseService(name string) (Service, int, error) {
	svc := Service(name)
	code, ok := serviceCodes[svc]
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	return svc, code, nil
}
