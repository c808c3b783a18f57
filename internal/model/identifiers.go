package model

import (
	"sort"
	"strings"
)

// Wildcard addresses every index of an application.
const Wildcard = "*"

// AppUUID identifies a tenant application.
type AppUUID string

// ComposeUUID returns the canonical string form.
func (a AppUUID) ComposeUUID() string { return strings.TrimSpace(string(a)) }

// IndexUUID identifies an index. It may hold a comma separated composite or the wildcard.
type IndexUUID string

// ComposeUUID returns the normalised form: trimmed, sorted, deduplicated, wildcard collapsed.
func (i IndexUUID) ComposeUUID() string {
	parts := i.Split()
	if len(parts) == 0 {
		return ""
	}
	out := make([]string, len(parts))
	for n, p := range parts {
		out[n] = string(p)
	}
	return strings.Join(out, ",")
}

// Split returns the individual indices of a composite id.
func (i IndexUUID) Split() []IndexUUID {
	raw := strings.Split(string(i), ",")
	seen := make(map[string]struct{}, len(raw))
	var ids []string
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if r == Wildcard {
			return []IndexUUID{Wildcard}
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		ids = append(ids, r)
	}
	sort.Strings(ids)
	res := make([]IndexUUID, len(ids))
	for n, id := range ids {
		res[n] = IndexUUID(id)
	}
	return res
}

// IsWildcard reports whether the id addresses all indices.
func (i IndexUUID) IsWildcard() bool { return i.ComposeUUID() == Wildcard }

// IsComposite reports whether the id names more than one index.
func (i IndexUUID) IsComposite() bool { return len(i.Split()) > 1 }

// TokenUUID identifies a token.
type TokenUUID string

// ComposeUUID returns the canonical string form.
func (t TokenUUID) ComposeUUID() string { return strings.TrimSpace(string(t)) }

// RepositoryReference scopes an operation to an application and optionally an index.
// Values built with NewRepositoryReference are comparable and safe as map keys.
type RepositoryReference struct {
	AppUUID   AppUUID   `json:"app_uuid"`
	IndexUUID IndexUUID `json:"index_uuid,omitempty"`
}

// NewRepositoryReference normalises both identifiers.
func NewRepositoryReference(app AppUUID, index IndexUUID) RepositoryReference {
	return RepositoryReference{
		AppUUID:   AppUUID(app.ComposeUUID()),
		IndexUUID: IndexUUID(index.ComposeUUID()),
	}
}

// ChangeIndex returns a copy scoped to another index.
func (r RepositoryReference) ChangeIndex(index IndexUUID) RepositoryReference {
	return NewRepositoryReference(r.AppUUID, index)
}

// Compose returns app_index, or app alone when no index is set.
func (r RepositoryReference) Compose() string {
	app := r.AppUUID.ComposeUUID()
	index := r.IndexUUID.ComposeUUID()
	if index == "" {
		return app
	}
	return app + "_" + index
}

// Expand returns one reference per concrete index of a composite reference.
func (r RepositoryReference) Expand() []RepositoryReference {
	parts := r.IndexUUID.Split()
	if len(parts) == 0 {
		return []RepositoryReference{r}
	}
	res := make([]RepositoryReference, 0, len(parts))
	for _, p := range parts {
		res = append(res, NewRepositoryReference(r.AppUUID, p))
	}
	return res
}

func (r RepositoryReference) String() string { return r.Compose() }
