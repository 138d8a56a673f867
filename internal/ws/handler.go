package ws

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// SubjectLocal is the fiber local holding the caller's subject id.
const SubjectLocal = "subject_id"

const sendBuffer = 64

// Handler registers the connection with the hub. Clients watch their own
// subject; ?scope=all watches every subject.
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		subjectID, _ := c.Locals(SubjectLocal).(string)
		if c.Query("scope") == "all" {
			subjectID = allSubjects
		} else if subjectID == "" {
			_ = c.Close()
			return
		}

		client := &Client{
			hub:       hub,
			conn:      c,
			subjectID: subjectID,
			send:      make(chan []byte, sendBuffer),
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = c.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// UpgradeMiddleware rejects plain HTTP requests to the websocket route.
func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}
}
