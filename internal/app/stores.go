// Package app assembles the storage layer shared by the server and the
// seatctl command.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/exam-seating/internal/config"
	"github.com/iliyamo/exam-seating/internal/database"
	"github.com/iliyamo/exam-seating/internal/handler"
	"github.com/iliyamo/exam-seating/internal/repository"
	"github.com/iliyamo/exam-seating/internal/service"
)

// Stores is the storage backend selected by STORE_DRIVER.
type Stores struct {
	Rooms  service.RoomStore
	Seats  service.SeatStore
	Admins service.AdminDirectory // nil with the memory store
	Users  *repository.UserRepo   // nil with the memory store
	DB     *sql.DB                // nil with the memory store
}

// OpenStores connects the configured backend.  With mysql the embedded
// migrations run first when migrate is true.
func OpenStores(ctx context.Context, driver string, db config.DatabaseConfig, migrate bool, log *zap.Logger) (*Stores, error) {
	switch driver {
	case config.StoreMemory:
		rooms, seats := repository.NewMemoryStore()
		log.Warn("using in-memory store; data is lost on exit")
		return &Stores{Rooms: rooms, Seats: seats}, nil
	case config.StoreMySQL:
		conn, err := database.Open(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		if migrate {
			if err := database.RunMigrations(conn, log); err != nil {
				_ = conn.Close()
				return nil, err
			}
		}
		users := repository.NewUserRepo(conn)
		return &Stores{
			Rooms:  repository.NewRoomRepo(conn),
			Seats:  repository.NewSeatRepo(conn),
			Admins: users,
			Users:  users,
			DB:     conn,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Pinger returns the health check target, nil when there is no database.
func (s *Stores) Pinger() handler.Pinger {
	if s.DB == nil {
		return nil
	}
	return s.DB
}

// Close releases the database connection, if any.
func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
