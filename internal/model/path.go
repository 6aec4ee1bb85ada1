package model

import "slices"

// PathKind partitions waypoint sequences. Each kind has its own file extension
// and its own in-memory sequence.
type PathKind int32

const (
	// PathGrind is a patrol loop followed indefinitely.
	PathGrind PathKind = iota
	// PathVendor leads to a vendor and carries the vendor display name.
	PathVendor
)

// PathKinds lists all path kinds.
var PathKinds = []PathKind{PathGrind, PathVendor}

// String returns human-readable path kind name
func (k PathKind) String() string {
	switch k {
	case PathGrind:
		return "grind"
	case PathVendor:
		return "vendor"
	default:
		return "unknown"
	}
}

// Extension returns the file extension (with dot) used for this kind.
func (k PathKind) Extension() string {
	return "." + k.String()
}

// ParsePathKind is the inverse of PathKind.String.
func ParsePathKind(s string) (PathKind, bool) {
	for _, k := range PathKinds {
		if k.String() == s {
			return k, true
		}
	}
	return PathGrind, false
}

// Path — упорядоченная последовательность точек маршрута.
// VendorName заполняется только для PathVendor.
type Path struct {
	Kind       PathKind
	VendorName string
	Points     []Vector3
}

// Clone возвращает глубокую копию (Points не разделяется с оригиналом).
func (p Path) Clone() Path {
	p.Points = slices.Clone(p.Points)
	return p
}

// Len возвращает количество точек.
func (p Path) Len() int {
	return len(p.Points)
}
