package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/chat"
	"taskline/internal/engine"
)

func registerChat(api huma.API, o chat.Orchestrator) {
	huma.Register(api, huma.Operation{
		OperationID: "send-chat-message",
		Method:      http.MethodPost,
		Path:        "/chat/message",
		Summary:     "Send a chat message",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body SendMessageRequest `json:"body"`
	}) (*struct {
		Body ChatReplyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		reply, err := o.Send(ctx, userID, input.Body.ConversationID, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatReplyResponse `json:"body"`
		}{Body: replyResponse(reply)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-chat-action",
		Method:      http.MethodPost,
		Path:        "/chat/confirm",
		Summary:     "Approve or decline a pending action",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body ConfirmRequest `json:"body"`
	}) (*struct {
		Body ChatReplyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		reply, err := o.Confirm(ctx, userID, input.Body.Token, input.Body.Approve)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatReplyResponse `json:"body"`
		}{Body: replyResponse(reply)}, nil
	})
}

func registerConversations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-conversations",
		Method:      http.MethodGet,
		Path:        "/conversations",
		Summary:     "List conversations",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ConversationResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListConversations(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		res := []ConversationResponse{}
		for _, c := range items {
			res = append(res, conversationResponse(c))
		}
		return &struct {
			Body []ConversationResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-conversation-messages",
		Method:      http.MethodGet,
		Path:        "/conversations/{id}/messages",
		Summary:     "List messages in a conversation",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []MessageResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// Ownership check before reading messages.
		if _, err := e.Repo.GetConversation(ctx, userID, input.ID); err != nil {
			return nil, handleError(err)
		}
		msgs, err := e.Repo.ListMessages(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res := []MessageResponse{}
		for _, m := range msgs {
			res = append(res, messageResponse(m))
		}
		return &struct {
			Body []MessageResponse `json:"body"`
		}{Body: res}, nil
	})
}
