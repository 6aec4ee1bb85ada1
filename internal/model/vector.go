package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Vector3 представляет координаты в мире оракула.
// Value type, передаётся по значению.
type Vector3 struct {
	X float32
	Y float32
	Z float32
}

// NewVector3 создаёт Vector3 с указанными координатами.
func NewVector3(x, y, z float32) Vector3 {
	return Vector3{X: x, Y: y, Z: z}
}

// DistanceSquared возвращает квадрат расстояния до другой точки (без sqrt).
func (v Vector3) DistanceSquared(other Vector3) float64 {
	dx := float64(v.X) - float64(other.X)
	dy := float64(v.Y) - float64(other.Y)
	dz := float64(v.Z) - float64(other.Z)
	return dx*dx + dy*dy + dz*dz
}

// PlanarDistanceSquared возвращает квадрат расстояния в плоскости (x, y), Z игнорируется.
func (v Vector3) PlanarDistanceSquared(other Vector3) float64 {
	dx := float64(v.X) - float64(other.X)
	dy := float64(v.Y) - float64(other.Y)
	return dx*dx + dy*dy
}

// String возвращает запись вида "x,y,z" (формат строки файла пути).
func (v Vector3) String() string {
	return strconv.FormatFloat(float64(v.X), 'f', -1, 32) + "," +
		strconv.FormatFloat(float64(v.Y), 'f', -1, 32) + "," +
		strconv.FormatFloat(float64(v.Z), 'f', -1, 32)
}

// ParseVector3 разбирает запись "x,y,z". Пробелы вокруг чисел допускаются.
func ParseVector3(s string) (Vector3, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return Vector3{}, fmt.Errorf("expected 3 comma-separated values, got %d", len(parts))
	}

	var out [3]float32
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return Vector3{}, fmt.Errorf("parsing component %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return Vector3{X: out[0], Y: out[1], Z: out[2]}, nil
}
