package components

// Props decoded from YAML hold ints or floats depending on the literal.

func propFloat(props map[string]any, key string, fallback float32) float32 {
	switch v := props[key].(type) {
	case float64:
		return float32(v)
	case int:
		return float32(v)
	}
	return fallback
}

func propInt(props map[string]any, key string, fallback int) int {
	switch v := props[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}
