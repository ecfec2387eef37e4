package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the app origin; auth happens via
	// the authenticate message, not the origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one live websocket connection after authentication.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	gymID  string
}

// trySend queues a message for delivery, dropping it if the client's
// buffer is full. Delivery is best-effort.
func (c *Client) trySend(raw []byte) {
	select {
	case c.send <- raw:
	default:
		log.Printf("dropping message for slow client %s", c.userID)
	}
}

// close asks the write pump to shut the connection down.
func (c *Client) close() {
	select {
	case c.send <- nil:
	default:
		c.conn.Close()
	}
}

// wsClaims are the JWT claims a client authenticates with.
type wsClaims struct {
	GymID string `json:"gymId"`
	jwt.RegisteredClaims
}

// VerifyToken parses and validates a client token, returning the user
// id and the gym id claim.
func VerifyToken(tokenString, secret string) (userID, gymID string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &wsClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid token")
	}
	claims, ok := token.Claims.(*wsClaims)
	if !ok || claims.Subject == "" {
		return "", "", errors.New("invalid token claims")
	}
	return claims.Subject, claims.GymID, nil
}

// ServeWS upgrades an HTTP request to a websocket connection and
// waits for the authenticate message before binding it to the hub.
func ServeWS(hub *Hub, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go client.writePump()
	go client.readPump(jwtSecret)
}

// readPump reads messages from the connection. The first message must
// authenticate; everything after it is ignored except control frames.
func (c *Client) readPump(jwtSecret string) {
	defer func() {
		if c.userID != "" {
			c.hub.unbind(c)
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read error: %v", err)
			}
			return
		}

		if c.userID != "" {
			continue
		}

		var msg authenticateMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "authenticate" {
			continue
		}
		userID, tokenGymID, err := VerifyToken(msg.Token, jwtSecret)
		if err != nil {
			log.Printf("websocket authentication failed: %v", err)
			return
		}
		gymID := msg.GymID
		if gymID == "" {
			gymID = tokenGymID
		}
		c.userID = userID
		c.gymID = gymID
		c.hub.bind(c)
	}
}

// writePump writes queued messages and keeps the connection alive
// with pings. A nil message on the send channel closes the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if raw == nil {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
