package litterbox

// EntityKind is the presentation class of an entity.
type EntityKind string

const (
	KindSensor       EntityKind = "sensor"
	KindBinarySensor EntityKind = "binary_sensor"
	KindSwitch       EntityKind = "switch"
	KindButton       EntityKind = "button"
)

// Entity describes one observable or controllable facet of the litter box.
type Entity struct {
	Key              string     `json:"key"`
	Kind             EntityKind `json:"kind"`
	Icon             string     `json:"icon,omitempty"`
	EnabledByDefault bool       `json:"enabled_by_default"`
	Options          []string   `json:"options,omitempty"`

	// Property backs switches; Service backs buttons.
	Property Property `json:"property,omitempty"`
	Service  Service  `json:"service,omitempty"`

	value func(Snapshot) any
}

// Value reads the entity's state from a snapshot. Buttons have no state.
func (e Entity) Value(s Snapshot) any {
	if e.value == nil {
		return nil
	}
	return e.value(s)
}

var entities = []Entity{
	{Key: "lid_installed", Kind: KindBinarySensor, Icon: "mdi:package-variant-closed", EnabledByDefault: true,
		value: func(s Snapshot) any { return s.UpLidStatus }},
	{Key: "bin_inserted", Kind: KindBinarySensor, Icon: "mdi:delete", EnabledByDefault: true,
		value: func(s Snapshot) any { return s.DrawerStatus }},
	{Key: "bin_full", Kind: KindBinarySensor, Icon: "mdi:delete-empty", EnabledByDefault: true,
		value: func(s Snapshot) any { return s.FullStatus }},

	{Key: "last_usage", Kind: KindSensor, Icon: "mdi:toilet", EnabledByDefault: true,
		value: func(s Snapshot) any {
			if t := s.LastUsageTime(); !t.IsZero() {
				return t
			}
			return nil
		}},
	{Key: "status", Kind: KindSensor, Icon: "mdi:state-machine", EnabledByDefault: true, Options: workStatusLabels,
		value: func(s Snapshot) any { return s.WorkStatusLabel() }},
	{Key: "error_status", Kind: KindSensor, Icon: "mdi:alert", EnabledByDefault: true, Options: errorStatusLabels,
		value: func(s Snapshot) any { return s.ErrorStatusLabel() }},
	{Key: "software_version", Kind: KindSensor, Icon: "mdi:cellphone-arrow-down",
		value: func(s Snapshot) any { return s.SoftwareVersion }},

	{Key: "auto_clean", Kind: KindSwitch, Icon: "mdi:vacuum", EnabledByDefault: true, Property: AutoClean,
		value: func(s Snapshot) any { return s.AutoClean }},
	{Key: "auto_bury", Kind: KindSwitch, Icon: "mdi:shovel", EnabledByDefault: true, Property: DeepClean,
		value: func(s Snapshot) any { return s.DeepClean }},
	{Key: "device_lights", Kind: KindSwitch, Icon: "mdi:spotlight", EnabledByDefault: true, Property: LightSwitch,
		value: func(s Snapshot) any { return s.LightSwitch }},
	{Key: "small_cat_mode", Kind: KindSwitch, Icon: "mdi:cat", Property: SmallCatMode,
		value: func(s Snapshot) any { return s.SmallCatMode }},

	{Key: "clean", Kind: KindButton, Icon: "mdi:broom", EnabledByDefault: true, Service: ServiceClean},
	{Key: "level", Kind: KindButton, Icon: "mdi:spirit-level", EnabledByDefault: true, Service: ServiceLevel},
	{Key: "dump", Kind: KindButton, Icon: "mdi:nuke", Service: ServiceDump},
}

// Entities returns the entity catalogue.
func Entities() []Entity {
	return append([]Entity(nil), entities...)
}

// LookupEntity finds an entity by key.
func LookupEntity(key string) (Entity, bool) {
	for _, e := range entities {
		if e.Key == key {
			return e, true
		}
	}
	return Entity{}, false
}

// State renders every stateful entity of a snapshot keyed by entity key.
func State(s Snapshot) map[string]any {
	out := make(map[string]any, len(entities))
	for _, e := range entities {
		if e.Kind == KindButton {
			continue
		}
		out[e.Key] = e.Value(s)
	}
	return out
}
