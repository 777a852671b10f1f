// Package modules declares the application's database modules: the table
// set and seed rows each file starts with, and the introspection rules that
// bring older files forward.
package modules

import (
	"intratool/internal/registry"
	"intratool/internal/schema"
)

// MainFile is the storage file of the main module.
const MainFile = "intratool.db"

// Migrations maps a module id to its migration, for tooling that wants to
// plan changes without applying them.
var Migrations = map[string]schema.Migration{
	"main":                 mainMigration,
	"planner":              plannerMigration,
	"requests":             requestsMigration,
	"warehouse-management": warehouseMigration,
	"cost-assistant":       costAssistantMigration,
	"notifications":        notificationsMigration,
	"ai":                   aiMigration,
}

// Descriptors returns the main descriptor followed by every auxiliary one.
func Descriptors() (registry.Descriptor, []registry.Descriptor) {
	main := registry.Descriptor{
		ID: "main", File: MainFile, Owner: "core",
		Initialize: initMain, Migrate: mainMigration.Run,
	}
	others := []registry.Descriptor{
		{ID: "planner", File: "planner.db", Owner: "production",
			Initialize: initPlanner, Migrate: plannerMigration.Run},
		{ID: "requests", File: "requests.db", Owner: "purchasing",
			Initialize: initRequests, Migrate: requestsMigration.Run},
		{ID: "warehouse-management", File: "warehouse.db", Owner: "logistics",
			Initialize: initWarehouse, Migrate: warehouseMigration.Run},
		{ID: "cost-assistant", File: "cost-assistant.db", Owner: "sales",
			Initialize: initCostAssistant, Migrate: costAssistantMigration.Run},
		{ID: "notifications", File: "notifications.db", Owner: "core",
			Initialize: initNotifications, Migrate: notificationsMigration.Run},
		{ID: "ai", File: "ia.db", Owner: "assistant",
			Initialize: initAI, Migrate: aiMigration.Run},
	}
	return main, others
}

// Default builds the registry of every module.
func Default() *registry.Registry {
	main, others := Descriptors()
	return registry.MustNew(main, others...)
}
