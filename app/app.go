package app

import (
	"database/sql"

	"github.com/go-chi/oauth"
	"github.com/mbolis/quick-funnel/config"
	"github.com/mbolis/quick-funnel/funnel"
	"github.com/mbolis/quick-funnel/storage"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config

	Chats *funnel.Registry
	Blobs storage.Blobs
}
