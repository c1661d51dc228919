package domain

// Unit describes one content unit. Keys are defined by the package backend
// (for rpm units: name, epoch, version, release, arch).
type Unit map[string]any

// Options carries backend-defined flags for a content operation.
type Options map[string]any

// Bool returns the boolean option stored under key, or def when the key is
// absent or not a boolean.
func (o Options) Bool(key string, def bool) bool {
	v, ok := o[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// String returns the string value stored under key in the unit.
func (u Unit) String(key string) string {
	v, _ := u[key].(string)
	return v
}
