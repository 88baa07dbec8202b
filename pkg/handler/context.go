package handler

// DI for all handlers.

import (
	"github.com/yumyai/qtlview/pkg/db"
	"github.com/yumyai/qtlview/pkg/dispatch"
	"github.com/yumyai/qtlview/pkg/ensimpl"
	"github.com/yumyai/qtlview/pkg/state"
	"github.com/yumyai/qtlview/pkg/tasks"
)

type AppContext struct {
	State      *state.AppState
	Dispatch   *dispatch.Dispatcher
	Tasks      *tasks.Orchestrator
	Requests   state.RequestBuilder
	Phenotypes *db.PhenotypeIndex
	Genes      *ensimpl.Client
}
