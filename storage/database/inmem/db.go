// Package inmemdb is an in-memory implementation of the repositories, used by tests and demos.
package inmemdb

import (
	"cmp"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/notification"
	"github.com/trezcool/tathmini/core/response"
	"github.com/trezcool/tathmini/core/scale"
	"github.com/trezcool/tathmini/core/template"
	"github.com/trezcool/tathmini/core/user"
)

type (
	DB struct {
		mutex sync.RWMutex
		txMu  sync.Mutex
		tables
	}

	tables struct {
		users          map[string]user.User
		groups         map[string]group.Group
		memberships    map[string]group.Membership // by membershipKey
		scales         map[string]scale.Scale
		templates      map[string]template.Template
		items          map[string]template.Item
		templateItems  map[string]template.TemplateItem
		evaluations    map[string]evaluation.Evaluation
		assignGroups   map[string]evaluation.AssignGroup
		responses      map[string]response.Response
		emailTemplates map[string]notification.EmailTemplate
	}

	txKey struct{}
)

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return &DB{tables: newTables()}
}

func newTables() tables {
	return tables{
		users:          make(map[string]user.User),
		groups:         make(map[string]group.Group),
		memberships:    make(map[string]group.Membership),
		scales:         make(map[string]scale.Scale),
		templates:      make(map[string]template.Template),
		items:          make(map[string]template.Item),
		templateItems:  make(map[string]template.TemplateItem),
		evaluations:    make(map[string]evaluation.Evaluation),
		assignGroups:   make(map[string]evaluation.AssignGroup),
		responses:      make(map[string]response.Response),
		emailTemplates: make(map[string]notification.EmailTemplate),
	}
}

func copyMap[V any](m map[string]V) map[string]V {
	c := make(map[string]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (t tables) snapshot() tables {
	return tables{
		users:          copyMap(t.users),
		groups:         copyMap(t.groups),
		memberships:    copyMap(t.memberships),
		scales:         copyMap(t.scales),
		templates:      copyMap(t.templates),
		items:          copyMap(t.items),
		templateItems:  copyMap(t.templateItems),
		evaluations:    copyMap(t.evaluations),
		assignGroups:   copyMap(t.assignGroups),
		responses:      copyMap(t.responses),
		emailTemplates: copyMap(t.emailTemplates),
	}
}

// WithinTx restores the tables as they were before fn when it fails.
// Transactions are serialized; nested calls join the outer transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mutex.RLock()
	saved := db.tables.snapshot()
	db.mutex.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		db.mutex.Lock()
		db.tables = saved
		db.mutex.Unlock()
		return err
	}
	return nil
}

// Flush empties every table.
func (db *DB) Flush() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.tables = newTables()
}

func newID() string {
	return uuid.New().String()
}

func values[V any](m map[string]V, keep func(V) bool) []V {
	vals := make([]V, 0, len(m))
	for _, v := range m {
		if keep == nil || keep(v) {
			vals = append(vals, v)
		}
	}
	return vals
}

func count[V any](m map[string]V, keep func(V) bool) int {
	var n int
	for _, v := range m {
		if keep(v) {
			n++
		}
	}
	return n
}

// comparators maps orderable fields to their comparison functions.
type comparators[V any] map[string]func(a, b V) int

// sortRecords sorts recs by ordering, falling back to dflt for ties and unknown fields.
func sortRecords[V any](recs []V, ordering []core.DBOrdering, cmps comparators[V], dflt func(a, b V) int) {
	sort.SliceStable(recs, func(i, j int) bool {
		for _, ord := range ordering {
			fn, ok := cmps[ord.Field]
			if !ok {
				continue
			}
			c := fn(recs[i], recs[j])
			if !ord.Ascending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return dflt(recs[i], recs[j]) < 0
	})
}

func compareTimes(a, b time.Time) int {
	return a.Compare(b)
}

// byCreation orders records by creation time, then by ID.
func byCreation(createdA, createdB time.Time, idA, idB string) int {
	if c := compareTimes(createdA, createdB); c != 0 {
		return c
	}
	return cmp.Compare(idA, idB)
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
