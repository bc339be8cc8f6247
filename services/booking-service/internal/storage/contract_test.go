package storage_test

import (
	"github.com/detailbook/detailbook/services/booking-service/internal/availability"
	"github.com/detailbook/detailbook/services/booking-service/internal/bookings"
	"github.com/detailbook/detailbook/services/booking-service/internal/clients"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify"
	"github.com/detailbook/detailbook/services/booking-service/internal/storage"
	"github.com/detailbook/detailbook/services/booking-service/internal/storage/memory"
	"github.com/detailbook/detailbook/services/booking-service/internal/tenants"
	"github.com/detailbook/detailbook/services/booking-service/internal/threads"
	"github.com/detailbook/detailbook/services/booking-service/internal/workflow"
)

// Both stores back every service.
var (
	_ tenants.Store      = (*storage.Store)(nil)
	_ clients.Store      = (*storage.Store)(nil)
	_ bookings.Store     = (*storage.Store)(nil)
	_ availability.Store = (*storage.Store)(nil)
	_ notify.Store       = (*storage.Store)(nil)
	_ threads.Store      = (*storage.Store)(nil)
	_ workflow.Store     = (*storage.Store)(nil)

	_ tenants.Store      = (*memory.Store)(nil)
	_ clients.Store      = (*memory.Store)(nil)
	_ bookings.Store     = (*memory.Store)(nil)
	_ availability.Store = (*memory.Store)(nil)
	_ notify.Store       = (*memory.Store)(nil)
	_ threads.Store      = (*memory.Store)(nil)
	_ workflow.Store     = (*memory.Store)(nil)
)
