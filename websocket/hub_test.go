package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/events"
	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/services"
)

// staticTokens maps raw tokens to principals
type staticTokens map[string]services.Principal

func (s staticTokens) ParseToken(ctx context.Context, raw string) (*services.Principal, error) {
	p, ok := s[raw]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &p, nil
}

type hubFixture struct {
	hub    *Hub
	bus    *events.MemoryBus
	server *httptest.Server
	admin  services.Principal
	alice  services.Principal
	bob    services.Principal
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &hubFixture{
		hub:   NewHub(),
		bus:   events.NewMemoryBus(),
		admin: services.Principal{UserID: primitive.NewObjectID(), Role: models.RoleAdmin},
		alice: services.Principal{UserID: primitive.NewObjectID(), Role: models.RoleMerchant},
		bob:   services.Principal{UserID: primitive.NewObjectID(), Role: models.RoleCustomer},
	}
	go f.hub.Run(ctx)
	t.Cleanup(f.hub.Subscribe(f.bus))

	tokens := staticTokens{"admin": f.admin, "alice": f.alice, "bob": f.bob}
	e := echo.New()
	e.GET("/api/ws", Handler(f.hub, tokens, nil))
	f.server = httptest.NewServer(e)
	t.Cleanup(f.server.Close)
	return f
}

func (f *hubFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := read(t, conn)
	require.Equal(t, NotificationTypeConnected, welcome.Type)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Notification {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var n Notification
	require.NoError(t, conn.ReadJSON(&n))
	return n
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var n Notification
	err := conn.ReadJSON(&n)
	assert.Error(t, err, "unexpected message %+v", n)
}

func TestHandler_RejectsWithoutValidToken(t *testing.T) {
	f := newHubFixture(t)
	base := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/ws"

	for _, url := range []string{base, base + "?token=forged"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestHub_RoutesEventsByAudience(t *testing.T) {
	f := newHubFixture(t)
	ctx := context.Background()

	admin := f.dial(t, "admin")
	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")

	require.NoError(t, f.bus.Publish(ctx, events.ForAdmins(events.SubscriptionCreated, "New subscription", map[string]string{"package": "Gold"})))
	n := read(t, admin)
	assert.Equal(t, events.SubscriptionCreated, n.Type)
	assert.Equal(t, "Gold", n.Data["package"])

	require.NoError(t, f.bus.Publish(ctx, events.ForUser(f.alice.UserID.Hex(), events.MerchantVerified, "You are verified", nil)))
	n = read(t, alice)
	assert.Equal(t, events.MerchantVerified, n.Type)
	assert.Equal(t, f.alice.UserID.Hex(), n.UserID)

	assertSilent(t, bob)
	assertSilent(t, admin)
}

func TestHub_DeliversToEveryConnectionOfAUser(t *testing.T) {
	f := newHubFixture(t)

	first := f.dial(t, "bob")
	second := f.dial(t, "bob")
	assert.Equal(t, 1, f.hub.ConnectedUsers())

	delivered := f.hub.SendToUser(f.bob.UserID, Notification{Type: events.OrderStatusChanged, Message: "Shipped"})
	assert.Equal(t, 2, delivered)
	assert.Equal(t, "Shipped", read(t, first).Message)
	assert.Equal(t, "Shipped", read(t, second).Message)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	f := newHubFixture(t)

	conn := f.dial(t, "alice")
	require.Equal(t, 1, f.hub.ConnectedUsers())
	conn.Close()

	assert.Eventually(t, func() bool { return f.hub.ConnectedUsers() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, f.hub.SendToUser(f.alice.UserID, Notification{Type: "x"}))
}

func TestHub_DropsEventWithInvalidUser(t *testing.T) {
	f := newHubFixture(t)
	admin := f.dial(t, "admin")

	f.hub.Dispatch(events.ForUser("not-an-id", events.OrderCreated, "x", nil))
	assertSilent(t, admin)
}
