package gateway

import "github.com/Phambanam99/qlvb-thanh-sub004/internal/readstatus"

// StoreProvider hands out the read status store of a user. The gateway
// subscribes connections to these stores; service.ReadStatusService
// implements it.
type StoreProvider interface {
	Store(userID int64) *readstatus.Store
}
