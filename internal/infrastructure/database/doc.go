// Package database opens the bridge's SQLite store and applies its schema
// migrations.
//
// The store is optional. It holds the state history of each air
// conditioner (see internal/history). Migrations are plain SQL files named
// YYYYMMDD_HHMMSS_description.{up,down}.sql, embedded by the migrations
// package and passed to Migrate.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
