package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

const (
	levelSuccess = "success"
	levelInfo    = "info"
	levelError   = "error"
)

// notices carries one-shot messages to the next rendered page in the "messages" cookie.
var notices = flash.New(flash.Config{
	Name:     "messages",
	Path:     "/",
	SameSite: "Lax",
	HTTPOnly: true,
})

func addFlash(c *fiber.Ctx, level, text string) {
	notices.SetMessage(router.NewFiberContext(c, nil), flash.Message{Type: level, Text: text})
}

// popFlash returns the queued messages and clears the cookie.
func popFlash(c *fiber.Ctx) []flash.Message {
	messages, _ := notices.GetMessages(router.NewFiberContext(c, nil))
	return messages
}
