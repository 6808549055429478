// Package inmemdb provides map-backed repositories for tests and demo data.
package inmemdb

import (
	"sync"

	"github.com/shuleapp/shule/core/event"
	"github.com/shuleapp/shule/core/library"
	"github.com/shuleapp/shule/core/tenant"
	"github.com/shuleapp/shule/core/user"
)

type DB struct {
	mutex sync.RWMutex

	tenants map[string]*tenant.Tenant
	domains map[string]*tenant.Domain // keyed by host
	users   map[string]*user.User
	events  map[string]*event.Event
	books   map[string]*library.Book
	borrows map[string]*library.BorrowRecord
}

func NewDB() *DB {
	return &DB{
		tenants: make(map[string]*tenant.Tenant),
		domains: make(map[string]*tenant.Domain),
		users:   make(map[string]*user.User),
		events:  make(map[string]*event.Event),
		books:   make(map[string]*library.Book),
		borrows: make(map[string]*library.BorrowRecord),
	}
}
