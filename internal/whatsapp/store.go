package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/roelfdiedericks/wamcp/internal/paths"
	"github.com/roelfdiedericks/wamcp/internal/phone"
)

// ErrNotConnected is returned by SendText while no client is connected.
var ErrNotConnected = errors.New("whatsapp: not connected")

// openStore opens (creating if needed) the sqlite device store at dbPath
// and upgrades its schema.
func openStore(ctx context.Context, dbPath string, log waLog.Logger) (*sql.DB, *sqlstore.Container, error) {
	if err := paths.EnsureParentDir(dbPath); err != nil {
		return nil, nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db: %w", err)
	}

	container := sqlstore.NewWithDB(db, "sqlite3", log)
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to upgrade store: %w", err)
	}
	return db, container, nil
}

// ParseChatID converts a "<digits>@c.us" chat identifier into a JID on the
// default user server. A bare number is accepted as well.
func ParseChatID(chatID string) (types.JID, error) {
	user := phone.StripSuffix(strings.TrimSpace(chatID))
	if user == "" {
		return types.JID{}, fmt.Errorf("invalid chat id %q", chatID)
	}
	for _, r := range user {
		if r < '0' || r > '9' {
			return types.JID{}, fmt.Errorf("invalid chat id %q", chatID)
		}
	}
	return types.NewJID(user, types.DefaultUserServer), nil
}
