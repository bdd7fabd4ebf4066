package utils

// number covers the request settings where zero means "use the API default".
type number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// IfPositive returns a pointer to v when v is above zero and nil otherwise, so
// an unset setting is left out of an omitempty pointer field.
func IfPositive[T number](v T) *T {
	if v <= 0 {
		return nil
	}
	return &v
}
