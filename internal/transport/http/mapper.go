package http

import (
	"errors"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
)

// inboundToEvent decodes a trigger frame and attributes it to the authenticated user.
func inboundToEvent(user core.User, inbound proto.Inbound) (core.Event, error) {
	if len(inbound.Data) == 0 {
		return nil, core.NewCoreError(core.ErrCodeBadRequest, "trigger requires an event")
	}
	e, err := proto.DecodeEventData(inbound.Data)
	if err != nil {
		if errors.Is(err, proto.ErrUnknownEvent) {
			return nil, core.NewCoreError(core.ErrCodeUnknownEvent, err.Error())
		}
		return nil, err
	}
	return core.WithUser(e, user), nil
}
