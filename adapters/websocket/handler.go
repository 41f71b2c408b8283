package websocket

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
)

// Handler upgrades an authenticated request. The session must have been
// put in the echo context under sessionKey by the auth middleware.
func (s *Server) Handler(sessionKey string) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, ok := c.Get(sessionKey).(*domain.Session)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing session")
		}

		conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}

		var client *Client
		client = NewClient(conn, sess.ID, func(msg Message) {
			go s.handle(client, sess, msg)
		})
		s.join(client)

		client.Run()

		// Wait for the client context to be done (connection closed)
		<-client.Context().Done()
		s.leave(client)

		return nil
	}
}
