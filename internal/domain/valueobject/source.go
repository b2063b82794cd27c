package valueobject

import "errors"

// Source описывает происхождение payload в снапшоте фида (Value Object)
type Source string

const (
	Live   Source = "live"
	Cached Source = "cached"
	Demo   Source = "demo"
)

// Validate проверяет валидность источника
func (s Source) Validate() error {
	switch s {
	case Live, Cached, Demo:
		return nil
	default:
		return errors.New("invalid snapshot source")
	}
}

// String возвращает строковое представление источника
func (s Source) String() string {
	return string(s)
}

// IsStale сообщает, устарели ли данные из этого источника.
// Только live считается свежим.
func (s Source) IsStale() bool {
	return s != Live
}

// Rank упорядочивает источники по доверию: live > cached > demo
func (s Source) Rank() int {
	switch s {
	case Live:
		return 2
	case Cached:
		return 1
	default:
		return 0
	}
}

// AllSources возвращает список всех допустимых источников
func AllSources() []Source {
	return []Source{Live, Cached, Demo}
}
