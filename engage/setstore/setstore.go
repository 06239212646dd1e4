// Named sets of strings configured by the operator, such as the list of authors who always bypass the engagement gate.
package setstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Name of the set of user identities treated like forum moderators.
const BypassUsers = "bypass-users"

type SetStore interface {
	InSet(ctx context.Context, name, val string) (bool, error)
}

// Read-only after loading; not safe for concurrent mutation.
type MemSetStore struct {
	Sets map[string]map[string]bool
}

var _ SetStore = (*MemSetStore)(nil)

func NewMemSetStore() MemSetStore {
	return MemSetStore{
		Sets: make(map[string]map[string]bool),
	}
}

func (s MemSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	set, ok := s.Sets[name]
	if !ok {
		// a set which was never configured is empty
		return false, nil
	}
	return set[val], nil
}

func (s MemSetStore) Add(name string, vals ...string) {
	set, ok := s.Sets[name]
	if !ok {
		set = make(map[string]bool, len(vals))
		s.Sets[name] = set
	}
	for _, v := range vals {
		set[v] = true
	}
}

// Loads sets from a JSON object mapping set names to arrays of strings, eg:
//
//	{"bypass-users": ["some_label_account", "festival_bot"]}
func (s MemSetStore) LoadFromFileJSON(p string) error {

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var sets map[string][]string
	if err := json.Unmarshal(raw, &sets); err != nil {
		return fmt.Errorf("parsing sets file %s: %w", p, err)
	}

	for name, l := range sets {
		s.Add(name, l...)
	}
	return nil
}
