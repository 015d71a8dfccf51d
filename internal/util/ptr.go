package util

func StringPtr(v string) *string { return &v }

// OptString returns nil for blank input.
func OptString(v string) *string {
	if NormalizeLabel(v) == "" {
		return nil
	}
	return &v
}

func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
