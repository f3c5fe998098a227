package docstore

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func validIdent(name string) bool {
	return identPattern.MatchString(name)
}

// buildFind compiles q into SQL against the documents table. Each equality
// filter becomes a JSONB containment test so typed values (booleans, numbers)
// compare the same way they were stored.
func buildFind(q Query) (string, []any, error) {
	if !validIdent(q.Collection) {
		return "", nil, fmt.Errorf("%w: collection %q", ErrInvalidQuery, q.Collection)
	}
	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)

	for _, f := range q.Filters {
		if !validIdent(f.Field) {
			return "", nil, fmt.Errorf("%w: field %q", ErrInvalidQuery, f.Field)
		}
		fragment, err := json.Marshal(map[string]any{f.Field: f.Value})
		if err != nil {
			return "", nil, fmt.Errorf("%w: field %q: %v", ErrInvalidQuery, f.Field, err)
		}
		args = append(args, string(fragment))
		sb.WriteString(` AND data @> $` + strconv.Itoa(len(args)) + `::jsonb`)
	}

	if q.OrderBy != "" {
		if !validIdent(q.OrderBy) {
			return "", nil, fmt.Errorf("%w: order field %q", ErrInvalidQuery, q.OrderBy)
		}
		args = append(args, q.OrderBy)
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		sb.WriteString(` ORDER BY data -> $` + strconv.Itoa(len(args)) + ` ` + dir + `, id ASC`)
	} else {
		sb.WriteString(` ORDER BY created_at ASC, id ASC`)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}
	return sb.String(), args, nil
}
