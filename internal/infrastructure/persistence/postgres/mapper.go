package postgres

import (
	"database/sql"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
)

// TransitionDBModel представляет переход фида в БД
type TransitionDBModel struct {
	ID         string
	FeedKey    string
	FromSource string
	ToSource   string
	ErrorKind  sql.NullString
	ObservedAt time.Time
	ReceivedAt sql.NullTime
}

// ToDBModel конвертирует Domain Entity в DB Model
func ToDBModel(t *entity.Transition) *TransitionDBModel {
	model := &TransitionDBModel{
		ID:         t.ID(),
		FeedKey:    t.FeedKey(),
		FromSource: t.From().String(),
		ToSource:   t.To().String(),
		ObservedAt: t.ObservedAt().UTC(),
	}

	if kind := t.ErrorKind(); kind != valueobject.NoError {
		model.ErrorKind = sql.NullString{String: kind.String(), Valid: true}
	}
	if received := t.ReceivedAt(); !received.IsZero() {
		model.ReceivedAt = sql.NullTime{Time: received.UTC(), Valid: true}
	}

	return model
}

// ToEntity конвертирует DB Model в Domain Entity
func ToEntity(model *TransitionDBModel) (*entity.Transition, error) {
	from := valueobject.Source(model.FromSource)
	if err := from.Validate(); err != nil {
		return nil, err
	}
	to := valueobject.Source(model.ToSource)
	if err := to.Validate(); err != nil {
		return nil, err
	}

	kind := valueobject.NoError
	if model.ErrorKind.Valid {
		kind = valueobject.ErrorKind(model.ErrorKind.String)
		if err := kind.Validate(); err != nil {
			return nil, err
		}
	}

	var received time.Time
	if model.ReceivedAt.Valid {
		received = model.ReceivedAt.Time
	}

	return entity.ReconstructTransition(
		model.ID,
		model.FeedKey,
		from,
		to,
		kind,
		model.ObservedAt,
		received,
	), nil
}

// ScanTransitionRow сканирует строку БД в TransitionDBModel
func ScanTransitionRow(row interface {
	Scan(dest ...interface{}) error
}) (*TransitionDBModel, error) {
	var model TransitionDBModel

	err := row.Scan(
		&model.ID,
		&model.FeedKey,
		&model.FromSource,
		&model.ToSource,
		&model.ErrorKind,
		&model.ObservedAt,
		&model.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}

	return &model, nil
}
