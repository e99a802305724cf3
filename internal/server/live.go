package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/noah-analytics/noah-server/internal/pages"
	"github.com/noah-analytics/noah-server/internal/table"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// liveInput is one keystroke batch of a text widget. An empty column or
// "q" targets the global search.
type liveInput struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

type liveError struct {
	Error string `json:"error"`
}

// liveSession keeps one page table open for a socket. Text input is
// debounced per widget and every applied value pushes a fresh view.
type liveSession struct {
	page   string
	svc    *pages.Service
	t      *table.Table
	conn   *websocket.Conn
	delay  time.Duration
	logger *zap.Logger

	// inputs is only touched by the read loop
	inputs map[string]*table.TextInput

	mu     sync.Mutex
	closed bool
}

func (s *Server) liveTable(c echo.Context) error {
	page := c.Param("page")
	filters, p, err := splitTableQuery(c.QueryParams())
	if err != nil {
		return err
	}

	t, err := s.cfg.Pages.Table(c.Request().Context(), page, filters)
	if t == nil {
		return err
	}
	if err != nil {
		s.cfg.Logger.Warn("live table with malformed filters ignored", zap.String("page", page), zap.Error(err))
	}
	if p.PageSize > 0 {
		t.SetPageSize(p.PageSize)
	}
	t.SetPageIndex(p.PageIndex)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already answered the request
		s.cfg.Pages.Release(t)
		s.cfg.Logger.Debug("live table upgrade failed", zap.Error(err))
		return nil
	}

	ls := &liveSession{
		page:   page,
		svc:    s.cfg.Pages,
		t:      t,
		conn:   conn,
		delay:  s.cfg.TextDebounce,
		logger: s.cfg.Logger.With(zap.String("page", page)),
		inputs: make(map[string]*table.TextInput),
	}
	// a closed connection ends the read loop on shutdown
	stop := context.AfterFunc(s.base, func() { conn.Close() })
	defer stop()
	defer ls.close()

	ls.run()
	return nil
}

func (ls *liveSession) run() {
	ls.push()
	for {
		var msg liveInput
		if err := ls.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ls.logger.Debug("live table read failed", zap.Error(err))
			}
			return
		}

		in, err := ls.input(msg.Column)
		if err != nil {
			ls.write(liveError{Error: err.Error()})
			continue
		}
		in.Type(msg.Value)
	}
}

func (ls *liveSession) input(column string) (*table.TextInput, error) {
	if column == table.GlobalSearchParam {
		column = ""
	}
	if in, ok := ls.inputs[column]; ok {
		return in, nil
	}

	var in *table.TextInput
	if column == "" {
		in = ls.t.GlobalInput(ls.delay)
	} else {
		col, ok := ls.t.Column(column)
		if !ok || col.Filter != table.Text {
			return nil, fmt.Errorf("column %q has no text filter", column)
		}
		in = ls.t.ColumnInput(column, ls.delay)
	}
	in.OnApply(func(string) { ls.push() })
	ls.inputs[column] = in
	return in, nil
}

func (ls *liveSession) push() {
	ls.write(ls.svc.Render(ls.page, ls.t))
}

func (ls *liveSession) write(v any) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.closed {
		return
	}
	if err := ls.conn.WriteJSON(v); err != nil {
		ls.logger.Debug("live table write failed", zap.Error(err))
	}
}

func (ls *liveSession) close() {
	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		return
	}
	ls.closed = true
	ls.mu.Unlock()

	for _, in := range ls.inputs {
		in.Stop()
	}
	ls.conn.Close()
	ls.svc.Release(ls.t)
}
