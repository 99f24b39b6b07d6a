package channelRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/discuss/internal/middleware"
	channelService "github.com/nikhil/discuss/internal/service/channels"
)

func ChannelRoutes(router *mux.Router, auth *middleware.Authenticator, channelService *channelService.ChannelService) {
	public := func(h http.HandlerFunc) http.Handler { return auth.Public(h) }
	user := func(h http.HandlerFunc) http.Handler { return auth.RequireUser(h) }

	// Routes are registered on the root router: sibling routes of a PathPrefix
	// subrouter clear a method mismatch, which turns 405 into 404.
	post := func(path string, h http.Handler) {
		router.Handle(path, middleware.ResponseWrapperMiddleware(h)).Methods(http.MethodPost)
	}

	post("/discuss/channel/members", public(channelService.Members))
	post("/discuss/channel/update_avatar", user(channelService.UpdateAvatar))
	post("/discuss/channel/info", public(channelService.Info))
	post("/discuss/channel/messages", public(channelService.Messages))
	post("/discuss/channel/pinned_messages", public(channelService.PinnedMessages))
	post("/discuss/channel/mute", user(channelService.Mute))
	post("/discuss/channel/update_custom_notifications", user(channelService.UpdateCustomNotifications))
	post("/discuss/channel/mark_as_read", public(channelService.MarkAsRead))
	post("/discuss/channel/mark_as_unread", public(channelService.MarkAsUnread))
	post("/discuss/channel/notify_typing", public(channelService.NotifyTyping))
	post("/discuss/channel/attachments", public(channelService.Attachments))
	post("/discuss/channel/fold", public(channelService.Fold))
	post("/discuss/channel/message_post", public(channelService.MessagePost))

	post("/mail/data", public(channelService.MailData))
}
