package registry

import (
	"github.com/odvcencio/hotreg/pkg/class"
	"github.com/odvcencio/hotreg/pkg/store"
)

// Store is the type-erased view of a store.Store that the coordinator drives.
type Store interface {
	Has(cls *class.Class) bool
	Finalized(cls *class.Class) bool
	FinalizeClass(cls *class.Class) error
	Remove(id class.StableID) bool
	Save(ids []class.StableID) (restore func())
	Classes() []*class.Class
	SetParentFunc(parent store.ParentFunc)
}

// Index is a pluggable collection that derives its own per-class
// configuration from class metadata. The optional hooks below are detected
// with type assertions.
type Index interface {
	Store() Store
}

// Declarer adapts a class into the index when it is added or changed. It is
// where declaration-site registrations (directives) are interpreted.
type Declarer interface {
	Declare(cls *class.Class) error
}

// Finalizer runs before the store finalizes an adapted class.
type Finalizer interface {
	Finalize(cls *class.Class) error
}

// Creator is notified once per finalized class of a batch.
type Creator interface {
	OnCreate(cls *class.Class)
}

// BeforeBatchCompleter is called once per batch after the index's OnCreate
// calls. Every index completes this phase before any AfterBatchComplete.
type BeforeBatchCompleter interface {
	BeforeBatchComplete(classes []*class.Class)
}

// AfterBatchCompleter is called once per batch after every index has
// completed BeforeBatchComplete.
type AfterBatchCompleter interface {
	AfterBatchComplete(classes []*class.Class)
}

// Remover is notified after a removed class has been dropped from every
// store.
type Remover interface {
	OnRemove(cls *class.Class)
}

// MethodChangeListener receives method-level events for every applied change.
type MethodChangeListener interface {
	OnMethodChange(ev class.MethodEvent)
}
