package model

import (
	"strconv"
	"time"
)

// EntityID — непрозрачный 64-битный идентификатор сущности оракула.
// Стабилен на всё время жизни сущности. 0 означает "нет сущности".
type EntityID uint64

// IsZero сообщает, что идентификатор пустой.
func (id EntityID) IsZero() bool {
	return id == 0
}

// String возвращает hex-представление (так идентификаторы показываются в логах и API).
func (id EntityID) String() string {
	return "0x" + strconv.FormatUint(uint64(id), 16)
}

// ParseEntityID принимает "0x"-hex (как String) или десятичное значение.
func ParseEntityID(s string) (EntityID, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, err
	}
	return EntityID(v), nil
}

// EntityKind classifies an entity. Resolved once when the snapshot is built
// and never changes afterwards.
type EntityKind int32

const (
	KindOther EntityKind = iota
	KindUnit
	KindPlayer
	KindGameObject
	KindContainer
	KindItem
)

// String returns human-readable kind name
func (k EntityKind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindPlayer:
		return "player"
	case KindGameObject:
		return "gameobject"
	case KindContainer:
		return "container"
	case KindItem:
		return "item"
	default:
		return "other"
	}
}

// ParseEntityKind is the inverse of EntityKind.String.
func ParseEntityKind(s string) (EntityKind, bool) {
	for k := KindOther; k <= KindItem; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindOther, false
}

// Raw object type values reported by the oracle.
const (
	rawObject        uint32 = 0
	rawItem          uint32 = 1
	rawContainer     uint32 = 2
	rawUnit          uint32 = 3
	rawPlayer        uint32 = 4
	rawGameObject    uint32 = 5
	rawDynamicObject uint32 = 6
	rawCorpse        uint32 = 7
)

// KindFromRaw maps a raw oracle type value to EntityKind.
// Returns false if the value is outside the valid range; such entities are discarded.
func KindFromRaw(raw uint32) (EntityKind, bool) {
	switch raw {
	case rawItem:
		return KindItem, true
	case rawContainer:
		return KindContainer, true
	case rawUnit:
		return KindUnit, true
	case rawPlayer:
		return KindPlayer, true
	case rawGameObject:
		return KindGameObject, true
	case rawObject, rawDynamicObject, rawCorpse:
		return KindOther, true
	default:
		return KindOther, false
	}
}

// RawFromKind returns a raw type value that KindFromRaw maps back to k.
func RawFromKind(k EntityKind) uint32 {
	switch k {
	case KindItem:
		return rawItem
	case KindContainer:
		return rawContainer
	case KindUnit:
		return rawUnit
	case KindPlayer:
		return rawPlayer
	case KindGameObject:
		return rawGameObject
	default:
		return rawObject
	}
}

// EntitySnapshot — копия состояния сущности на момент последнего обновления кэша.
// Позиция и здоровье best-effort и могут устареть между обновлениями.
type EntitySnapshot struct {
	ID            EntityID
	Kind          EntityKind
	Name          string
	Position      Vector3
	Facing        float32
	Health        int32
	MaxHealth     int32
	Flags         uint32
	LastRefreshed time.Time
}
