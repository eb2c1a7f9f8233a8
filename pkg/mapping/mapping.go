package mapping

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

func ValueToSQLNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func ValueToSQLNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func ValueToSQLNullInt32(i int32) sql.NullInt32 {
	return sql.NullInt32{Int32: i, Valid: i != 0}
}

func PointerToSQLNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func PointerToSQLNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func PointerToSQLNullInt32(i *int32) sql.NullInt32 {
	if i == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: *i, Valid: true}
}

func SQLNullStringToPointer(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func SQLNullTimeToPointer(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func SQLNullInt32ToPointer(i sql.NullInt32) *int32 {
	if !i.Valid {
		return nil
	}
	v := i.Int32
	return &v
}

// UUIDPointerToSQLNullString serializes an optional uuid foreign key the way
// repositories store ids, as text.
func UUIDPointerToSQLNullString(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func SQLNullStringToUUIDPointer(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
