package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dicodingevent/internal/eventsync"
	appLog "dicodingevent/internal/log"
	"dicodingevent/internal/model"
	"dicodingevent/internal/observable"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Access control is basic auth, not origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

type fetchListPayload struct {
	Status string `json:"status"`
	Query  string `json:"q"`
}

type fetchEventPayload struct {
	ID int `json:"id"`
}

// handleWS upgrades the connection and runs one session: a list screen, a
// detail screen and the favorites screen, all streaming their state.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		appLog.Error("websocket upgrade failed", err)
		return
	}

	client := s.hub.NewClient(uuid.New().String(), conn)
	if err := s.hub.Register(client); err != nil {
		appLog.Error("websocket register failed", err, "client_id", client.ID)
		_ = conn.Close()
		return
	}

	sess := newSession(s, client)
	sess.start()
	defer sess.stop()

	go client.WritePump()
	client.ReadPump(sess.handle)
}

type session struct {
	srv    *Server
	client *Client

	list   *eventsync.Controller
	detail *eventsync.Controller

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closers []func()
}

func newSession(srv *Server, client *Client) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		srv:    srv,
		client: client,
		list:   srv.newController(),
		detail: srv.newController(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (ss *session) start() {
	listSub := ss.list.Subscribe()
	detailSub := ss.detail.Subscribe()
	favSub := ss.srv.favorites.Favorites()
	ss.closers = append(ss.closers, listSub.Close, detailSub.Close, favSub.Close)

	forward(ss, TypeListState, listSub)
	forward(ss, TypeDetailState, detailSub)
	forward(ss, TypeFavorites, favSub)
}

func (ss *session) stop() {
	ss.cancel()
	for _, c := range ss.closers {
		c()
	}
	ss.wg.Wait()
}

// forward relays every value of sub to the client until sub is closed. A
// client that cannot take an update is disconnected, like on broadcast: a
// dropped update could be the terminal one, leaving the surface loading.
func forward[T any](ss *session, typ string, sub *observable.Subscription[T]) {
	ss.wg.Add(1)
	go func() {
		defer ss.wg.Done()
		for v := range sub.C() {
			if !ss.client.Send(typ, v) {
				if !ss.client.isClosed() {
					appLog.Warn("websocket: client cannot keep up, disconnecting", "client_id", ss.client.ID, "type", typ)
				}
				ss.client.Close()
				return
			}
		}
	}()
}

func (ss *session) handle(msg Message) {
	switch msg.Type {
	case TypeFetchList:
		var p fetchListPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				ss.fail("invalid fetch_list payload")
				return
			}
		}
		status, err := model.ParseStatus(p.Status)
		if err != nil {
			ss.fail(err.Error())
			return
		}
		ss.list.FetchList(status, strings.TrimSpace(p.Query))

	case TypeFetchEvent:
		var p fetchEventPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ID <= 0 {
			ss.fail("invalid fetch_event payload")
			return
		}
		ss.detail.FetchOne(p.ID)

	case TypeToggleFavorite:
		var ev model.Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil || ev.ID <= 0 {
			ss.fail("invalid toggle_favorite payload")
			return
		}
		ss.srv.io.Go(func(context.Context) {
			fav, err := ss.srv.favorites.Toggle(ss.ctx, ev)
			if err != nil {
				appLog.Error("websocket: toggle failed", err, "id", ev.ID)
				ss.fail("favorite toggle failed")
				return
			}
			ss.client.Send(TypeFavoriteState, favoriteState{ID: strconv.Itoa(ev.ID), Favorite: fav})
		})

	case TypePing:
		ss.client.Send(TypePong, nil)

	default:
		ss.fail("unknown message type " + strconv.Quote(msg.Type))
	}
}

func (ss *session) fail(message string) {
	ss.client.Send(TypeError, errorPayload{Message: message})
}
